package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/podscribe/backend/internal/progress"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DeepgramClient implements the synchronous provider flow: one blocking call
// with the raw audio bytes that returns the complete result in a single round
// trip. The provider itself blocks until transcription is done, so the client
// timeout is generous.
type DeepgramClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewDeepgramClient(apiKey string) *DeepgramClient {
	return &DeepgramClient{
		apiKey:  apiKey,
		baseURL: deepgramBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *DeepgramClient) Name() string {
	return "deepgram"
}

func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, onProgress ProgressFunc) (json.RawMessage, error) {
	onProgress(progress.StageProcessing, 0.2, "Sending audio to Deepgram for transcription...")

	params := url.Values{}
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	params.Set("utterances", "true")
	params.Set("punctuate", "true")
	params.Set("diarize", "true")

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/listen?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, &ProviderError{Provider: "deepgram", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	log.Printf("[deepgram] sending %d bytes to %s/v1/listen", len(audio), c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "deepgram", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "deepgram", Op: OpSubmit, Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: "deepgram",
			Op:       OpReported,
			Message:  fmt.Sprintf("status %d", resp.StatusCode),
			Response: errorPayload(body),
		}
	}

	onProgress(progress.StageProcessing, 0.9, "Deepgram transcription received. Finalizing transcript...")

	return body, nil
}
