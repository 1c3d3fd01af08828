package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/podscribe/backend/internal/feed"
)

type FeedHandler struct {
	parser *feed.Parser
}

func NewFeedHandler(parser *feed.Parser) *FeedHandler {
	return &FeedHandler{parser: parser}
}

type feedRequest struct {
	RSSURL string `json:"rssUrl"`
}

// Parse resolves a podcast RSS URL into feed metadata and episode candidates
// for transcription.
func (h *FeedHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	json.NewDecoder(r.Body).Decode(&req)

	if req.RSSURL == "" {
		jsonError(w, "rssUrl required", http.StatusBadRequest)
		return
	}

	info, episodes, err := h.parser.Fetch(r.Context(), req.RSSURL)
	if err != nil {
		jsonError(w, "Failed to parse RSS", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"feed":     info,
		"episodes": episodes,
	}, http.StatusOK)
}
