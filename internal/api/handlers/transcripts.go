package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/podscribe/backend/internal/store"
)

type TranscriptsHandler struct {
	store *store.Store
}

func NewTranscriptsHandler(st *store.Store) *TranscriptsHandler {
	return &TranscriptsHandler{store: st}
}

// List returns all saved transcripts, newest first.
func (h *TranscriptsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll()
	if err != nil {
		jsonError(w, "failed to read transcripts", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	jsonResponse(w, map[string]interface{}{"transcripts": records}, http.StatusOK)
}

type findRequest struct {
	AudioURL string `json:"audioUrl"`
}

// Find looks up the saved transcript for a single audio URL.
func (h *TranscriptsHandler) Find(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	json.NewDecoder(r.Body).Decode(&req)

	if req.AudioURL == "" {
		jsonError(w, "audioUrl required", http.StatusBadRequest)
		return
	}

	rec, err := h.store.FindByAudioSource(req.AudioURL)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "Transcript not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to find transcript", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, rec, http.StatusOK)
}
