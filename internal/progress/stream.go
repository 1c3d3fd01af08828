package progress

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/podscribe/backend/internal/transcript"
)

// Event statuses. The vocabulary is closed: upload/submit/poll/save sub-stages
// all report as "processing" and are told apart by the Stage tag.
const (
	StatusDownloading = "downloading"
	StatusProcessing  = "processing"
	StatusComplete    = "complete"
	StatusError       = "error"
)

// Event is one line of the newline-delimited JSON progress feed. Events are
// append-only per request; Complete and Error are terminal.
type Event struct {
	Timestamp  time.Time             `json:"timestamp"`
	Status     string                `json:"status"`
	Stage      string                `json:"stage,omitempty"`
	Message    string                `json:"message"`
	Progress   *int                  `json:"progress,omitempty"`
	Transcript *transcript.Canonical `json:"transcript,omitempty"`
	Error      *ErrorDetail          `json:"error,omitempty"`
}

// ErrorDetail carries the upstream failure payload on a terminal error event.
type ErrorDetail struct {
	Message  string          `json:"message"`
	Type     string          `json:"type,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Stream appends events onto an open transport as NDJSON. A broken transport
// must not abort an otherwise-successful transcription, so write failures are
// logged and swallowed.
type Stream struct {
	mu sync.Mutex
	w  io.Writer
	fl http.Flusher
}

// NewStream wraps w. If w also implements http.Flusher each event is flushed
// immediately so the client sees updates as they happen.
func NewStream(w io.Writer) *Stream {
	s := &Stream{w: w}
	if fl, ok := w.(http.Flusher); ok {
		s.fl = fl
	}
	return s
}

// Emit serializes the event as one JSON object followed by a newline.
func (s *Stream) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Progress != nil {
		p := *ev.Progress
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		ev.Progress = &p
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[stream] failed to encode event: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		log.Printf("[stream] failed to write event: %v", err)
		return
	}
	if s.fl != nil {
		s.fl.Flush()
	}
}

// Int returns a pointer to v, for populating Event.Progress.
func Int(v int) *int {
	return &v
}
