package models

import "strings"

// TranscriptSegment is one caption fragment. Start is in the provider's unit
// (seconds or milliseconds); it is passed through untouched.
type TranscriptSegment struct {
	Text     string   `json:"text"`
	Start    *float64 `json:"start,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// TranscriptResult is the normalized output of the transcript pipeline.
type TranscriptResult struct {
	TranscriptText *string             `json:"transcriptText"`
	Segments       []TranscriptSegment `json:"segments"`
	Cached         bool                `json:"cached,omitempty"`
}

// HasContent reports whether the result carries any usable transcript data.
func (r *TranscriptResult) HasContent() bool {
	if r == nil {
		return false
	}
	if r.TranscriptText != nil && strings.TrimSpace(*r.TranscriptText) != "" {
		return true
	}
	return len(r.Segments) > 0
}

// PlainText returns the reconstructed text, or the segments joined with spaces
// when the provider only returned segments.
func (r *TranscriptResult) PlainText() string {
	if r == nil {
		return ""
	}
	if r.TranscriptText != nil && *r.TranscriptText != "" {
		return *r.TranscriptText
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

type TranscriptRequest struct {
	VideoID   string   `json:"video_id"`
	Languages []string `json:"languages"`
}

type VideoMetadata struct {
	VideoID         string   `json:"video_id"`
	Title           string   `json:"title"`
	ChannelName     string   `json:"channel_name"`
	ThumbnailURL    string   `json:"thumbnail_url"`
	DurationSeconds int      `json:"duration_seconds"`
	CaptionLangs    []string `json:"caption_languages,omitempty"`
}
