package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/podscribe/backend/internal/progress"
)

const assemblyAIBaseURL = "https://api.assemblyai.com/v2"

// pollState is the observable state of an AssemblyAI transcription job.
type pollState string

const (
	stateQueued    pollState = "queued"
	stateRunning   pollState = "running"
	stateCompleted pollState = "completed"
	stateFailed    pollState = "failed"
)

// AssemblyAIClient implements the asynchronous provider flow: upload the raw
// bytes, submit a job referencing the upload, then poll the job status on a
// fixed interval until it completes or the attempt ceiling is exhausted.
type AssemblyAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// pollInterval and maxPollAttempts bound the completion loop; the
	// defaults give a 3-minute ceiling. Overridable for tests.
	pollInterval    time.Duration
	maxPollAttempts int
}

func NewAssemblyAIClient(apiKey string) *AssemblyAIClient {
	return &AssemblyAIClient{
		apiKey:  apiKey,
		baseURL: assemblyAIBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		pollInterval:    time.Second,
		maxPollAttempts: 180,
	}
}

func (c *AssemblyAIClient) Name() string {
	return "assemblyai"
}

func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte, onProgress ProgressFunc) (json.RawMessage, error) {
	onProgress(progress.StageUpload, 0.35, "Uploading audio to AssemblyAI...")

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	onProgress(progress.StageUpload, 1, "Audio uploaded. Submitting transcription job to AssemblyAI...")

	jobID, err := c.submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	log.Printf("[assemblyai] transcript job submitted: %s", jobID)

	onProgress(progress.StageProcessing, 0.05, "AssemblyAI received the audio. Processing has started... (this may take a few minutes)")

	return c.awaitCompletion(ctx, jobID, onProgress)
}

// upload sends the raw audio bytes and returns the opaque upload reference.
func (c *AssemblyAIClient) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpUpload, Message: err.Error(), Err: err}
	}
	req.Header.Set("authorization", c.apiKey)
	req.Header.Set("content-type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpUpload, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpUpload, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider: "assemblyai",
			Op:       OpUpload,
			Message:  fmt.Sprintf("status %d", resp.StatusCode),
			Response: errorPayload(body),
		}
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.UploadURL == "" {
		return "", &ProviderError{Provider: "assemblyai", Op: OpUpload, Message: "missing upload_url in response", Response: errorPayload(body)}
	}
	return result.UploadURL, nil
}

// submit creates the transcription job and returns its id.
func (c *AssemblyAIClient) submit(ctx context.Context, uploadURL string) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"audio_url":       uploadURL,
		"speaker_labels":  true,
		"auto_chapters":   false,
		"auto_highlights": false,
		"punctuate":       true,
		"format_text":     true,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	req.Header.Set("authorization", c.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: "assemblyai", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider: "assemblyai",
			Op:       OpSubmit,
			Message:  fmt.Sprintf("status %d", resp.StatusCode),
			Response: errorPayload(body),
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return "", &ProviderError{Provider: "assemblyai", Op: OpSubmit, Message: "missing id in response", Response: errorPayload(body)}
	}
	return result.ID, nil
}

// awaitCompletion drives the queued -> running -> completed/failed state
// machine. Each non-terminal poll emits a progress update; progress within the
// processing stage advances monotonically as attempts accumulate.
func (c *AssemblyAIClient) awaitCompletion(ctx context.Context, jobID string, onProgress ProgressFunc) (json.RawMessage, error) {
	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		body, state, errMsg, err := c.pollOnce(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch state {
		case stateCompleted:
			onProgress(progress.StageProcessing, 0.95, "AssemblyAI transcription complete. Finalizing transcript...")
			return body, nil
		case stateFailed:
			return nil, &ProviderError{
				Provider: "assemblyai",
				Op:       OpReported,
				Message:  errMsg,
				Response: errorPayload(body),
			}
		case stateQueued:
			onProgress(progress.StageProcessing, 0.15,
				fmt.Sprintf("AssemblyAI queueing job (%d/%d)", attempt+1, c.maxPollAttempts))
		case stateRunning:
			ratio := 0.5 + math.Min(0.4, float64(attempt)/float64(c.maxPollAttempts))
			onProgress(progress.StageProcessing, ratio,
				fmt.Sprintf("AssemblyAI processing audio (%d/%d)", attempt+1, c.maxPollAttempts))
		}

		select {
		case <-ctx.Done():
			return nil, &ProviderError{Provider: "assemblyai", Op: OpPoll, Message: ctx.Err().Error(), Err: ctx.Err()}
		case <-time.After(c.pollInterval):
		}
	}

	return nil, &TimeoutError{Provider: "assemblyai", Attempts: c.maxPollAttempts}
}

// pollOnce fetches the job status and classifies it.
func (c *AssemblyAIClient) pollOnce(ctx context.Context, jobID string) (json.RawMessage, pollState, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return nil, "", "", &ProviderError{Provider: "assemblyai", Op: OpPoll, Message: err.Error(), Err: err}
	}
	req.Header.Set("authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", "", &ProviderError{Provider: "assemblyai", Op: OpPoll, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", &ProviderError{Provider: "assemblyai", Op: OpPoll, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", "", &ProviderError{
			Provider: "assemblyai",
			Op:       OpPoll,
			Message:  fmt.Sprintf("status %d", resp.StatusCode),
			Response: errorPayload(body),
		}
	}

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, "", "", &ProviderError{Provider: "assemblyai", Op: OpPoll, Message: "malformed status response", Response: errorPayload(body)}
	}

	switch status.Status {
	case "completed":
		return body, stateCompleted, "", nil
	case "error":
		msg := status.Error
		if msg == "" {
			msg = "transcription failed"
		}
		return body, stateFailed, msg, nil
	case "queued":
		return body, stateQueued, "", nil
	default:
		// AssemblyAI reports "processing" while the job runs.
		return body, stateRunning, "", nil
	}
}

// errorPayload keeps a bounded copy of an upstream body for error reporting,
// wrapping non-JSON bodies so they survive re-serialization.
func errorPayload(body []byte) json.RawMessage {
	const limit = 2048
	if len(body) > limit {
		body = body[:limit]
	}
	trimmed := bytes.TrimSpace(body)
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(strings.ToValidUTF8(string(trimmed), ""))
	return json.RawMessage(quoted)
}
