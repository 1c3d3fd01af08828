package transcription

import (
	"context"
	"encoding/json"

	"github.com/podscribe/backend/internal/progress"
)

// ProgressFunc reports provider-side progress: the pipeline stage, a
// stage-local ratio in [0,1] and a human-readable message.
type ProgressFunc func(stage progress.Stage, ratio float64, message string)

// Provider is the common interface for all transcription backends. Transcribe
// submits the raw audio bytes and blocks until the provider produced a
// complete result or a terminal error; the returned payload is the provider's
// native response, to be normalized by the transcript package.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, onProgress ProgressFunc) (json.RawMessage, error)
	// Name returns the provider tag ("assemblyai", "deepgram").
	Name() string
}
