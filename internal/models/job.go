package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobGenerateAll     = "generate-all"
	JobGenerateFeature = "feature-generation"
	JobGenerateRoadmap = "roadmap-generation"
	JobFetchTranscript = "transcript-fetch"
)

// Job is a unit of background work executed by the worker pool.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	Feature   Feature   `json:"feature,omitempty"`
	Text      string    `json:"text,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type FeatureEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Feature   Feature   `json:"feature"`
	Status    string    `json:"status"` // "loading" | "completed" | "failed"
	Error     string    `json:"error,omitempty"`
}

// JobEvent reports the outcome of a background job.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	SessionID uuid.UUID `json:"session_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"` // "completed" | "failed"
	Error     string    `json:"error,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
