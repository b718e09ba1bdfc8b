package services

import (
	"context"
	"errors"
	"strings"

	yterrors "github.com/hightemp/youtube-transcript-api-go/errors"
	"golang.org/x/sync/singleflight"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
)

const (
	MsgTranscriptNotFound   = "No transcript found for this video (external API returned no text)."
	MsgTranscriptsDisabled  = "Transcripts are disabled for this video."
	MsgNoCaptions           = "No captions are available for this video in the requested languages."
	MsgTranscriptKeyMissing = "YT_TRANSCRIPT_API_KEY is not configured in environment"
	MsgVideoIDRequired      = "videoId is required and must be a string"
)

// TranscriptService fetches and normalizes transcripts, trying languages in
// order and caching successful results.
type TranscriptService struct {
	provider     TranscriptProvider
	cache        *TranscriptCache
	defaultLangs []string
	inflight     singleflight.Group
	log          *logger.Logger
}

func NewTranscriptService(provider TranscriptProvider, cache *TranscriptCache, defaultLangs []string, log *logger.Logger) *TranscriptService {
	if log == nil {
		log = logger.Nop()
	}
	return &TranscriptService{
		provider:     provider,
		cache:        cache,
		defaultLangs: append([]string(nil), defaultLangs...),
		log:          log.With("component", "transcript", "provider", provider.Name()),
	}
}

// DefaultLanguages returns a copy of the fallback order used when the caller
// passes none.
func (s *TranscriptService) DefaultLanguages() []string {
	return append([]string(nil), s.defaultLangs...)
}

// TranscriptCacheKey joins the trimmed video id and the language list.
func TranscriptCacheKey(videoID string, langs []string) string {
	return strings.TrimSpace(videoID) + "::" + strings.Join(langs, ",")
}

// FetchTranscript returns the transcript for videoID, trying languages in
// caller order. Concurrent misses for the same key share one probe.
func (s *TranscriptService) FetchTranscript(ctx context.Context, videoID string, languages []string) (*models.TranscriptResult, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, &ValidationError{Message: MsgVideoIDRequired, Fields: map[string]string{"videoId": "required"}}
	}
	langs := languages
	if len(langs) == 0 {
		langs = s.defaultLangs
	}

	key := TranscriptCacheKey(videoID, langs)
	if hit, ok := s.cache.Get(ctx, key); ok {
		s.log.Debug("transcript cache hit", "video_id", videoID)
		return hit, nil
	}

	if !s.provider.HasCredential() {
		return nil, &ConfigurationError{Message: MsgTranscriptKeyMissing}
	}

	// The probe outlives a cancelled caller so other waiters still get a result.
	probeCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		if hit, ok := s.cache.Get(probeCtx, key); ok {
			return hit, nil
		}
		result, err := s.probe(probeCtx, videoID, langs)
		if err != nil {
			return nil, err
		}
		s.cache.Set(probeCtx, key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		src := res.Val.(*models.TranscriptResult)
		out := *src
		if src.Segments != nil {
			out.Segments = append([]models.TranscriptSegment(nil), src.Segments...)
		}
		return &out, nil
	}
}

// probe asks the provider once per language and stops at the first language
// that yields captions. Per-language failures are logged and skipped; when
// the provider said why captions are missing, the not-found message says so.
func (s *TranscriptService) probe(ctx context.Context, videoID string, langs []string) (*models.TranscriptResult, error) {
	reason := captionsUnknown
	for _, lang := range langs {
		body, err := s.provider.Fetch(ctx, videoID, lang)
		if err != nil {
			s.log.Warn("transcript attempt failed", "video_id", videoID, "lang", lang, "error", err)
			if r := missingCaptionsReason(err); r > reason {
				reason = r
			}
			continue
		}

		result, err := NormalizeTranscriptBody(body, videoID)
		if err != nil {
			s.log.Warn("transcript response unreadable", "video_id", videoID, "lang", lang, "error", err)
			continue
		}
		if result == nil {
			s.log.Debug("transcript response empty", "video_id", videoID, "lang", lang)
			continue
		}

		s.log.Info("transcript fetched", "video_id", videoID, "lang", lang, "segments", len(result.Segments))
		return result, nil
	}

	switch reason {
	case captionsDisabled:
		return nil, &NotFoundError{Message: MsgTranscriptsDisabled}
	case captionsMissing:
		return nil, &NotFoundError{Message: MsgNoCaptions}
	default:
		return nil, &NotFoundError{Message: MsgTranscriptNotFound}
	}
}

// Ordered by specificity.
const (
	captionsUnknown = iota
	captionsMissing
	captionsDisabled
)

// missingCaptionsReason reads the caption library's error text, which is the
// only place it says whether captions are off or just absent.
func missingCaptionsReason(err error) int {
	var te *yterrors.TranscriptError
	if !errors.As(err, &te) {
		return captionsUnknown
	}
	switch {
	case strings.HasPrefix(te.Message, "Transcripts are disabled"):
		return captionsDisabled
	case strings.HasPrefix(te.Message, "No transcript"):
		return captionsMissing
	default:
		return captionsUnknown
	}
}
