package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/podscribe/backend/internal/progress"
)

// assemblyAIStub serves the three AssemblyAI endpoints with a scripted
// sequence of poll statuses.
type assemblyAIStub struct {
	mu       sync.Mutex
	statuses []string // consumed one per poll; the last repeats forever
	polls    int
	uploads  int
	submits  int
}

func (s *assemblyAIStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.uploads++
		s.mu.Unlock()
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.test/u/1"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.submits++
		s.mu.Unlock()
		var body struct {
			AudioURL      string `json:"audio_url"`
			SpeakerLabels bool   `json:"speaker_labels"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.AudioURL == "" || !body.SpeakerLabels {
			http.Error(w, `{"error": "bad submit"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "tr_test", "status": "queued"})
	})
	mux.HandleFunc("GET /transcript/tr_test", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.polls
		if idx >= len(s.statuses) {
			idx = len(s.statuses) - 1
		}
		status := s.statuses[idx]
		s.polls++
		s.mu.Unlock()

		resp := map[string]interface{}{"id": "tr_test", "status": status}
		if status == "completed" {
			resp["text"] = "done"
			resp["audio_duration"] = 1000
		}
		if status == "error" {
			resp["error"] = "audio too noisy"
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestAssemblyAIClient(baseURL string, maxAttempts int) *AssemblyAIClient {
	c := NewAssemblyAIClient("test-key")
	c.baseURL = baseURL
	c.pollInterval = time.Millisecond
	c.maxPollAttempts = maxAttempts
	return c
}

type observation struct {
	stage progress.Stage
	ratio float64
}

func TestAssemblyAIPollSequence(t *testing.T) {
	stub := &assemblyAIStub{statuses: []string{"queued", "queued", "processing", "completed"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestAssemblyAIClient(srv.URL, 180)

	var observations []observation
	raw, err := c.Transcribe(context.Background(), []byte("fake audio"), func(stage progress.Stage, ratio float64, message string) {
		observations = append(observations, observation{stage, ratio})
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("raw response is not JSON: %v", err)
	}
	if result.Status != "completed" || result.Text != "done" {
		t.Errorf("unexpected raw response: %+v", result)
	}

	if stub.uploads != 1 || stub.submits != 1 {
		t.Errorf("uploads=%d submits=%d, want 1 each", stub.uploads, stub.submits)
	}
	if stub.polls != 4 {
		t.Errorf("polls = %d, want 4", stub.polls)
	}

	// One progress observation per poll: queued, queued, running, completed.
	var pollObs []observation
	for _, o := range observations {
		if o.stage == progress.StageProcessing && o.ratio != 0.05 {
			pollObs = append(pollObs, o)
		}
	}
	if len(pollObs) != 4 {
		t.Fatalf("got %d poll observations, want 4: %+v", len(pollObs), pollObs)
	}
	prev := 0.0
	for _, o := range pollObs {
		if o.ratio < prev {
			t.Fatalf("poll progress decreased: %v after %v", o.ratio, prev)
		}
		prev = o.ratio
	}

	// Upload progress is reported before processing begins.
	if observations[0].stage != progress.StageUpload {
		t.Errorf("first observation stage = %v, want upload", observations[0].stage)
	}
}

func TestAssemblyAIPollTimeout(t *testing.T) {
	stub := &assemblyAIStub{statuses: []string{"processing"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	const attempts = 5
	c := newTestAssemblyAIClient(srv.URL, attempts)

	_, err := c.Transcribe(context.Background(), []byte("fake audio"), func(progress.Stage, float64, string) {})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Attempts != attempts {
		t.Errorf("attempts = %d, want %d", timeoutErr.Attempts, attempts)
	}
	// Exactly the ceiling, no later.
	if stub.polls != attempts {
		t.Errorf("polls = %d, want exactly %d", stub.polls, attempts)
	}
}

func TestAssemblyAIProviderReportedError(t *testing.T) {
	stub := &assemblyAIStub{statuses: []string{"queued", "error"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestAssemblyAIClient(srv.URL, 180)

	_, err := c.Transcribe(context.Background(), []byte("fake audio"), func(progress.Stage, float64, string) {})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Op != OpReported {
		t.Errorf("op = %v, want reported", provErr.Op)
	}
	if !strings.Contains(provErr.Message, "audio too noisy") {
		t.Errorf("message %q does not carry the provider error", provErr.Message)
	}
	if len(provErr.Response) == 0 {
		t.Error("provider payload was not attached")
	}
}

func TestAssemblyAIUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestAssemblyAIClient(srv.URL, 180)

	_, err := c.Transcribe(context.Background(), []byte("fake audio"), func(progress.Stage, float64, string) {})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Op != OpUpload {
		t.Errorf("op = %v, want upload", provErr.Op)
	}
}

func TestAssemblyAIPollCancellation(t *testing.T) {
	stub := &assemblyAIStub{statuses: []string{"processing"}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestAssemblyAIClient(srv.URL, 10_000)
	c.pollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Transcribe(ctx, []byte("fake audio"), func(progress.Stage, float64, string) {})
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not observe cancellation")
	}
}

func TestErrorPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid json", `{"error": "x"}`, `{"error": "x"}`},
		{"plain text", "upstream exploded", `"upstream exploded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorPayload([]byte(tt.in))
			if string(got) != tt.want {
				t.Errorf("errorPayload(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if !json.Valid(got) {
				t.Errorf("errorPayload(%q) is not valid JSON", tt.in)
			}
		})
	}
}
