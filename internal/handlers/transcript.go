package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
)

type transcriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string, languages []string) (*models.TranscriptResult, error)
}

// TranscriptHandler serves the standalone transcript lookup. Its errors are a
// flat {"error": "..."} body, which existing clients depend on.
type TranscriptHandler struct {
	transcripts transcriptFetcher
	log         *logger.Logger
}

func NewTranscriptHandler(transcripts transcriptFetcher, log *logger.Logger) *TranscriptHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TranscriptHandler{transcripts: transcripts, log: log}
}

// Get handles GET /api/transcript?videoId=..&langs=a,b
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	videoID := strings.TrimSpace(q.Get("videoId"))
	if videoID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": services.MsgVideoIDRequired})
		return
	}

	var langs []string
	for _, l := range strings.Split(q.Get("langs"), ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}

	result, err := h.transcripts.FetchTranscript(r.Context(), videoID, langs)
	if err != nil {
		var (
			validationErr *services.ValidationError
			notFoundErr   *services.NotFoundError
			configErr     *services.ConfigurationError
		)
		switch {
		case errors.As(err, &validationErr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
		case errors.As(err, &notFoundErr):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": notFoundErr.Message})
		case errors.As(err, &configErr):
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": configErr.Message})
		default:
			h.log.Error("transcript lookup failed", "video_id", videoID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
