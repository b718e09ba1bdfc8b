package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
	"studylens-backend/internal/session"
)

type fakeGateway struct{}

func (fakeGateway) Summarize(ctx context.Context, text string) (*models.Summary, error) {
	return &models.Summary{Summary: "summary of " + text}, nil
}
func (fakeGateway) Explain(ctx context.Context, text string) (*models.Explanation, error) {
	return &models.Explanation{Explanation: "explained"}, nil
}
func (fakeGateway) CreateFlashcards(ctx context.Context, text string) (*models.FlashcardSet, error) {
	return &models.FlashcardSet{Flashcards: []models.Flashcard{{Question: "q", Answer: "a"}}}, nil
}
func (fakeGateway) GenerateQuiz(ctx context.Context, text string) (*models.Quiz, error) {
	return nil, &services.ProviderError{Provider: "gemini", Err: errors.New("boom")}
}
func (fakeGateway) Timeline(ctx context.Context, text string) ([]models.TimelineEvent, error) {
	return []models.TimelineEvent{{Timestamp: "00:00", Highlight: "start"}}, nil
}
func (fakeGateway) AskDoubt(ctx context.Context, transcript, message, language string, history []models.ChatTurn) (*models.Doubt, error) {
	return &models.Doubt{Answer: "answer"}, nil
}
func (fakeGateway) GenerateRoadmap(ctx context.Context, topic string) (*models.Roadmap, error) {
	return &models.Roadmap{Topic: topic, Levels: []models.RoadmapLevel{{}}}, nil
}
func (fakeGateway) AnalyzeImage(ctx context.Context, question, imageDataURI string) (*models.ImageAnswer, error) {
	return &models.ImageAnswer{Answer: "a frame"}, nil
}

type noTranscripts struct{}

func (noTranscripts) FetchTranscript(ctx context.Context, videoID string, languages []string) (*models.TranscriptResult, error) {
	return nil, &services.NotFoundError{Message: services.MsgTranscriptNotFound}
}

type jobRecorder struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (r *jobRecorder) PublishSession(ctx context.Context, id uuid.UUID, msg models.WSMessage) {
	if msg.Type != MsgJobUpdate {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg.Payload.(models.JobEvent))
}

func (r *jobRecorder) waitFor(t *testing.T, jobID uuid.UUID) models.JobEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.JobID == jobID {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no job_update for job %s", jobID)
	return models.JobEvent{}
}

func newTestStore(t *testing.T, rec *jobRecorder) (*session.Store, *session.Session) {
	t.Helper()
	store := session.NewStore(session.Dependencies{
		Gateway:     fakeGateway{},
		Transcripts: noTranscripts{},
		Publisher:   rec,
	})
	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	sess.SetTranscript(context.Background(), "photosynthesis basics")
	return store, sess
}

func TestSubmitValidatesJobs(t *testing.T) {
	rec := &jobRecorder{}
	store, sess := newTestStore(t, rec)
	pool := NewPool(nil, store, rec, 1, time.Second, nil)

	tests := []struct {
		name string
		job  models.Job
	}{
		{"missing session", models.Job{Type: models.JobGenerateAll}},
		{"unknown type", models.Job{Type: "reindex", SessionID: sess.ID()}},
		{"chat is not a transcript feature", models.Job{Type: models.JobGenerateFeature, SessionID: sess.ID(), Feature: models.FeatureChat}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.Submit(context.Background(), tt.job)
			var ve *services.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Submit() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestPoolRunsLocalJobs(t *testing.T) {
	rec := &jobRecorder{}
	store, sess := newTestStore(t, rec)
	pool := NewPool(nil, store, rec, 2, 5*time.Second, nil)
	pool.Start()
	defer pool.Stop()

	job, err := pool.Submit(context.Background(), models.Job{
		Type:      models.JobGenerateFeature,
		SessionID: sess.ID(),
		Feature:   models.FeatureSummary,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.ID == uuid.Nil || job.CreatedAt.IsZero() {
		t.Fatalf("Submit() did not fill id/timestamp: %+v", job)
	}

	ev := rec.waitFor(t, job.ID)
	if ev.Status != "completed" {
		t.Fatalf("status = %q (%s), want completed", ev.Status, ev.Error)
	}
	if got := sess.Snapshot().Summary; got != "summary of photosynthesis basics" {
		t.Fatalf("summary = %q", got)
	}
}

func TestPoolReportsFailures(t *testing.T) {
	rec := &jobRecorder{}
	store, sess := newTestStore(t, rec)
	pool := NewPool(nil, store, rec, 1, 5*time.Second, nil)
	pool.Start()
	defer pool.Stop()

	quiz, _ := pool.Submit(context.Background(), models.Job{Type: models.JobGenerateFeature, SessionID: sess.ID(), Feature: models.FeatureQuiz})
	if ev := rec.waitFor(t, quiz.ID); ev.Status != "failed" || ev.Error == "" {
		t.Fatalf("quiz job event = %+v, want failed with error", ev)
	}
	if sess.Snapshot().Errors[models.FeatureQuiz] == "" {
		t.Fatal("quiz failure not recorded on session")
	}

	missing, _ := pool.Submit(context.Background(), models.Job{Type: models.JobGenerateAll, SessionID: uuid.New()})
	if ev := rec.waitFor(t, missing.ID); ev.Status != "failed" {
		t.Fatalf("missing session event = %+v", ev)
	}
}

func TestPoolRunsRedisJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rec := &jobRecorder{}
	store, sess := newTestStore(t, rec)
	pool := NewPool(rdb, store, rec, 1, 5*time.Second, nil)
	pool.Start()
	defer pool.Stop()

	job, err := pool.Submit(context.Background(), models.Job{Type: models.JobGenerateRoadmap, SessionID: sess.ID(), Topic: "Rust"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if ev := rec.waitFor(t, job.ID); ev.Status != "completed" {
		t.Fatalf("status = %q (%s)", ev.Status, ev.Error)
	}
	snap := sess.Snapshot()
	if snap.Roadmap == nil || snap.Roadmap.Topic != "Rust" {
		t.Fatalf("roadmap = %+v", snap.Roadmap)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mr.Exists("job_lock:" + job.ID.String()) {
		if time.Now().After(deadline) {
			t.Fatal("job lock not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessGenerateAll(t *testing.T) {
	rec := &jobRecorder{}
	store, sess := newTestStore(t, rec)
	pool := NewPool(nil, store, rec, 1, time.Second, nil)

	if err := pool.Process(context.Background(), models.Job{Type: models.JobGenerateAll, SessionID: sess.ID()}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	snap := sess.Snapshot()
	if snap.Summary == "" || snap.Explanation == "" || len(snap.Flashcards) != 1 || len(snap.Timeline) != 1 {
		t.Fatalf("outputs not generated: %+v", snap)
	}
	if snap.Errors[models.FeatureQuiz] == "" {
		t.Fatal("quiz error missing")
	}
	for f, loading := range snap.Loading {
		if loading {
			t.Fatalf("%s still loading", f)
		}
	}
}

func TestTimeoutForScalesGenerateAll(t *testing.T) {
	pool := NewPool(nil, nil, nil, 1, 10*time.Second, nil)

	if got := pool.timeoutFor(models.Job{Type: models.JobGenerateFeature}); got != 10*time.Second {
		t.Errorf("feature timeout = %v, want 10s", got)
	}
	want := time.Duration(len(models.TranscriptFeatures)) * 10 * time.Second
	if got := pool.timeoutFor(models.Job{Type: models.JobGenerateAll}); got != want {
		t.Errorf("generate-all timeout = %v, want %v", got, want)
	}
}
