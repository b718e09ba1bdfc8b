package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
	"studylens-backend/internal/session"
)

type sessionStore interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type tokenIssuer interface {
	GenerateSessionToken(sessionID uuid.UUID) (string, error)
}

type jobSubmitter interface {
	Submit(ctx context.Context, job models.Job) (models.Job, error)
}

type textExtractor interface {
	ExtractText(name string, data []byte) (string, error)
}

type SessionHandler struct {
	store  sessionStore
	tokens tokenIssuer
	jobs   jobSubmitter
	files  textExtractor
	log    *logger.Logger
}

func NewSessionHandler(store sessionStore, tokens tokenIssuer, jobs jobSubmitter, files textExtractor, log *logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHandler{store: store, tokens: tokens, jobs: jobs, files: files, log: log}
}

// session resolves the {sessionID} route param, writing the error response
// itself when it cannot.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, false
	}
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	return sess, true
}

// decode reads an optional JSON body. An empty body leaves dst untouched.
func decode(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func isAsync(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("async"))
	return v == "1" || v == "true"
}

func (h *SessionHandler) enqueue(w http.ResponseWriter, r *http.Request, job models.Job) {
	queued, err := h.jobs.Submit(r.Context(), job)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.AcceptedResponse{
		JobID:     queued.ID,
		SessionID: queued.SessionID,
		Status:    "queued",
	})
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Create(r.Context())
	if err != nil {
		h.log.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create session", r))
		return
	}

	token, err := h.tokens.GenerateSessionToken(sess.ID())
	if err != nil {
		h.log.Error("issue session token", "session_id", sess.ID(), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue session token", r))
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: sess.ID(),
		Token:     token,
		Session:   sess.Snapshot(),
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) SetYoutubeURL(w http.ResponseWriter, r *http.Request) {
	var req models.SetYoutubeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.SetYoutubeURL(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) SetTranscript(w http.ResponseWriter, r *http.Request) {
	var req models.SetTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.SetTranscript(r.Context(), req.Transcript))
}

func (h *SessionHandler) SetLanguages(w http.ResponseWriter, r *http.Request) {
	var req models.SetLanguagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.SetLanguages(r.Context(), req.Languages))
}

func (h *SessionHandler) SetRoadmapTopic(w http.ResponseWriter, r *http.Request) {
	var req models.RoadmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.SetRoadmapTopic(r.Context(), req.Topic))
}

func (h *SessionHandler) FetchTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if isAsync(r) {
		h.enqueue(w, r, models.Job{Type: models.JobFetchTranscript, SessionID: sess.ID()})
		return
	}
	if err := sess.FetchTranscript(r.Context()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// UploadTranscript replaces the transcript with text extracted from a
// multipart "file" field.
func (h *SessionHandler) UploadTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(services.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "File too large or invalid form data", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "No file provided", map[string]string{"file": "required"}, r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read uploaded file", r))
		return
	}

	text, err := h.files.ExtractText(header.Filename, data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.SetTranscript(r.Context(), text))
}

func (h *SessionHandler) GenerateFeature(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateFeatureRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	feature := models.Feature(chi.URLParam(r, "feature"))
	if !feature.IsTranscriptFeature() {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Unknown feature: "+string(feature), r))
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if isAsync(r) {
		h.enqueue(w, r, models.Job{Type: models.JobGenerateFeature, SessionID: sess.ID(), Feature: feature, Text: req.Text})
		return
	}
	if err := sess.GenerateFeature(r.Context(), feature, req.Text); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// GenerateAll always runs on the worker pool; progress arrives over the websocket.
func (h *SessionHandler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if strings.TrimSpace(snap.Transcript) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "No transcript available.", map[string]string{"transcript": "required"}, r))
		return
	}
	for _, f := range models.TranscriptFeatures {
		if snap.Loading[f] {
			handleServiceError(w, r, session.ErrFeatureBusy)
			return
		}
	}
	h.enqueue(w, r, models.Job{Type: models.JobGenerateAll, SessionID: sess.ID()})
}

func (h *SessionHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	// On failure the placeholder reply is already in the history; the error
	// status tells the client not to treat it as an answer.
	reply, err := sess.SendChatMessage(r.Context(), req.Message, req.Language)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *SessionHandler) GenerateRoadmap(w http.ResponseWriter, r *http.Request) {
	var req models.RoadmapRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if isAsync(r) {
		topic := strings.TrimSpace(req.Topic)
		if topic == "" {
			topic = strings.TrimSpace(sess.Snapshot().RoadmapTopic)
		}
		if topic == "" {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "topic is required", map[string]string{"topic": "required"}, r))
			return
		}
		h.enqueue(w, r, models.Job{Type: models.JobGenerateRoadmap, SessionID: sess.ID(), Topic: topic})
		return
	}

	if err := sess.GenerateRoadmap(r.Context(), req.Topic); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot().Roadmap)
}

func (h *SessionHandler) AnalyzeFrame(w http.ResponseWriter, r *http.Request) {
	var req models.FrameAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	answer, err := sess.AnalyzeFrame(r.Context(), req.Question, req.ImageDataURI)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
