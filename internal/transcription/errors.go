package transcription

import (
	"encoding/json"
	"fmt"
)

// ProviderOp identifies which step of a provider exchange failed.
type ProviderOp string

const (
	OpUpload   ProviderOp = "upload"
	OpSubmit   ProviderOp = "submit"
	OpPoll     ProviderOp = "poll"
	OpReported ProviderOp = "reported" // provider explicitly signaled failure
)

// ProviderError is a terminal failure from a transcription provider. Response
// holds the upstream error payload when one was returned.
type ProviderError struct {
	Provider string
	Op       ProviderOp
	Message  string
	Response json.RawMessage
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError means the poll loop exhausted its attempt ceiling without the
// job reaching a terminal status.
type TimeoutError struct {
	Provider string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s transcription timed out after %d poll attempts", e.Provider, e.Attempts)
}
