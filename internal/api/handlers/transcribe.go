package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/podscribe/backend/internal/progress"
	"github.com/podscribe/backend/internal/transcription"
)

type TranscribeHandler struct {
	service *transcription.Service
}

func NewTranscribeHandler(service *transcription.Service) *TranscribeHandler {
	return &TranscribeHandler{service: service}
}

type transcribeRequest struct {
	AudioURL    string `json:"audioUrl"`
	Title       string `json:"title"`
	PubDate     string `json:"pubDate"`
	GUID        string `json:"guid"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	FeedTitle   string `json:"feedTitle"`
	FeedURL     string `json:"feedUrl"`
	RSSURL      string `json:"rssUrl"`
}

// Transcribe runs the transcription pipeline, streaming progress events as
// newline-delimited JSON on the open response. Validation failures are plain
// HTTP errors; once the stream is open, every failure becomes a terminal
// error event instead.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	// A decode failure leaves AudioURL empty and falls through to the
	// required-field check, matching the empty-body case.
	json.NewDecoder(r.Body).Decode(&req)

	if req.AudioURL == "" {
		jsonError(w, "audioUrl required", http.StatusBadRequest)
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = "assemblyai"
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	stream := progress.NewStream(w)
	h.service.Run(r.Context(), transcription.Request{
		AudioURL:    req.AudioURL,
		Title:       req.Title,
		PubDate:     req.PubDate,
		GUID:        req.GUID,
		Description: req.Description,
		Provider:    provider,
		FeedTitle:   req.FeedTitle,
		FeedURL:     req.FeedURL,
		RSSURL:      req.RSSURL,
	}, stream)
}
