package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studylens-backend/internal/models"
)

type videoMetadataService interface {
	GetVideoMetadata(ctx context.Context, videoID string) (*models.VideoMetadata, error)
}

type VideoHandler struct {
	youtube videoMetadataService
}

func NewVideoHandler(youtube videoMetadataService) *VideoHandler {
	return &VideoHandler{youtube: youtube}
}

func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, err := h.youtube.GetVideoMetadata(r.Context(), chi.URLParam(r, "videoId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
