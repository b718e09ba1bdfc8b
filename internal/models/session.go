package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionSnapshot is the externally visible state of one study session. It is
// what the API returns, what WebSocket updates carry and what gets persisted.
type SessionSnapshot struct {
	ID                 uuid.UUID           `json:"id"`
	YoutubeURL         string              `json:"youtube_url"`
	VideoID            string              `json:"video_id"`
	Transcript         string              `json:"transcript"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments"`
	Languages          []string            `json:"languages"`

	Summary     string          `json:"summary"`
	Explanation string          `json:"explanation"`
	Flashcards  []Flashcard     `json:"flashcards"`
	Quiz        []QuizQuestion  `json:"quiz"`
	Timeline    []TimelineEvent `json:"timeline"`

	ChatHistory []ChatMessage `json:"chat_history"`

	RoadmapTopic string   `json:"roadmap_topic"`
	Roadmap      *Roadmap `json:"roadmap"`

	FrameQuestion string       `json:"frame_question"`
	ImageAnswer   *ImageAnswer `json:"image_answer"`

	Loading map[Feature]bool   `json:"loading"`
	Errors  map[Feature]string `json:"errors"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID        `json:"session_id"`
	Token     string           `json:"token"`
	Session   *SessionSnapshot `json:"session"`
}

type SetYoutubeURLRequest struct {
	URL string `json:"url"`
}

type SetTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

type SetLanguagesRequest struct {
	Languages []string `json:"languages"`
}

// AcceptedResponse answers requests that were queued on the worker pool.
type AcceptedResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
}
