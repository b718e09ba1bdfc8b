package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
)

// YouTubeService resolves video ids and reads public video metadata.
type YouTubeService struct {
	ytClient *yt.Client
	log      *logger.Logger
}

func NewYouTubeService(timeout time.Duration, log *logger.Logger) *YouTubeService {
	if log == nil {
		log = logger.Nop()
	}
	return &YouTubeService{
		ytClient: &yt.Client{HTTPClient: &http.Client{Timeout: timeout}},
		log:      log.With("component", "youtube"),
	}
}

// ExtractVideoID accepts a watch/share/embed URL or a bare id.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &ValidationError{Message: "YouTube URL is required", Fields: map[string]string{"url": "required"}}
	}
	id, err := yt.ExtractVideoID(input)
	if err != nil {
		return "", &ValidationError{Message: "Invalid YouTube URL: " + err.Error(), Fields: map[string]string{"url": "invalid"}}
	}
	return id, nil
}

func (s *YouTubeService) GetVideoMetadata(ctx context.Context, videoID string) (*models.VideoMetadata, error) {
	id, err := ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}

	video, err := s.ytClient.GetVideoContext(ctx, id)
	if err != nil {
		if errors.Is(err, yt.ErrVideoPrivate) || errors.Is(err, yt.ErrLoginRequired) {
			return nil, &NotFoundError{Message: "Video is private or unavailable"}
		}
		s.log.Warn("video metadata lookup failed", "video_id", id, "error", err)
		return nil, &ProviderError{Provider: "youtube", Err: err}
	}

	meta := &models.VideoMetadata{
		VideoID:         video.ID,
		Title:           video.Title,
		ChannelName:     video.Author,
		DurationSeconds: int(video.Duration / time.Second),
		ThumbnailURL:    bestThumbnail(video.Thumbnails, id),
	}
	for _, track := range video.CaptionTracks {
		if track.LanguageCode != "" {
			meta.CaptionLangs = append(meta.CaptionLangs, track.LanguageCode)
		}
	}
	return meta, nil
}

func bestThumbnail(thumbs yt.Thumbnails, videoID string) string {
	var best yt.Thumbnail
	for _, t := range thumbs {
		if t.Width*t.Height > best.Width*best.Height {
			best = t
		}
	}
	if best.URL != "" {
		return best.URL
	}
	return "https://img.youtube.com/vi/" + videoID + "/maxresdefault.jpg"
}
