// Package session holds per-session study state and the closed set of actions
// that mutate it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrFeatureBusy     = errors.New("feature is already running")
)

// Gateway is the generation surface the actions call.
type Gateway interface {
	Summarize(ctx context.Context, text string) (*models.Summary, error)
	Explain(ctx context.Context, text string) (*models.Explanation, error)
	CreateFlashcards(ctx context.Context, text string) (*models.FlashcardSet, error)
	GenerateQuiz(ctx context.Context, text string) (*models.Quiz, error)
	Timeline(ctx context.Context, text string) ([]models.TimelineEvent, error)
	AskDoubt(ctx context.Context, transcript, message, language string, history []models.ChatTurn) (*models.Doubt, error)
	GenerateRoadmap(ctx context.Context, topic string) (*models.Roadmap, error)
	AnalyzeImage(ctx context.Context, question, imageDataURI string) (*models.ImageAnswer, error)
}

type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string, languages []string) (*models.TranscriptResult, error)
}

// Repository persists snapshots. Load returns ErrSessionNotFound for unknown ids.
type Repository interface {
	Save(ctx context.Context, snap *models.SessionSnapshot) error
	Load(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher pushes realtime updates to clients watching a session.
type Publisher interface {
	PublishSession(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage)
}

type Dependencies struct {
	Gateway     Gateway
	Transcripts TranscriptFetcher
	Repo        Repository // optional
	Publisher   Publisher  // optional
	IdleTTL     time.Duration
	Log         *logger.Logger
}

// Store owns the live sessions. Sessions are created and torn down explicitly.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	deps     Dependencies
	now      func() time.Time
	log      *logger.Logger
}

func NewStore(deps Dependencies) *Store {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		deps:     deps,
		now:      time.Now,
		log:      deps.Log.With("component", "session_store"),
	}
}

func (s *Store) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	sess := newSession(s, &models.SessionSnapshot{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	})

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.persist(ctx)
	s.log.Info("session created", "session_id", sess.id)
	return sess, nil
}

// Get returns a live session, reloading it from the repository on a miss.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if s.deps.Repo == nil {
		return nil, ErrSessionNotFound
	}
	snap, err := s.deps.Repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Work in flight when the snapshot was written did not survive.
	snap.Loading = map[models.Feature]bool{}
	loaded := newSession(s, snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = loaded
	s.log.Debug("session restored", "session_id", id)
	return loaded, nil
}

// Delete tears a session down. Actions still running on it finish without
// publishing or writing their result back.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.markDeleted()
	}

	defer func() {
		s.mu.Lock()
		if cur, live := s.sessions[id]; live && (!ok || cur == sess) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
	}()

	if s.deps.Repo != nil {
		if ok {
			// Wait out a write already in progress.
			sess.persistMu.Lock()
			defer sess.persistMu.Unlock()
		}
		err := s.deps.Repo.Delete(ctx, id)
		if err != nil && !(ok && errors.Is(err, ErrSessionNotFound)) {
			return err
		}
	} else if !ok {
		return ErrSessionNotFound
	}
	s.log.Info("session deleted", "session_id", id)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops live sessions idle for longer than the idle TTL. Sessions with
// work in flight are kept. Persisted snapshots stay in the repository.
func (s *Store) Sweep() int {
	ttl := s.deps.IdleTTL
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("idle sessions swept", "count", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
