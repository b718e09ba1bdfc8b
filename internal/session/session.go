package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"studylens-backend/internal/models"
)

const (
	MsgSessionUpdate = "session_update"
	MsgFeatureUpdate = "feature_update"

	persistTimeout = 5 * time.Second
)

// Session is one user's study workspace. All mutation goes through its
// actions; reads go through Snapshot.
type Session struct {
	id    uuid.UUID
	store *Store

	mu         sync.Mutex
	state      models.SessionSnapshot
	lastActive time.Time
	deleted    bool

	// persistMu orders snapshot writes against Store.Delete.
	persistMu sync.Mutex
}

func newSession(store *Store, snap *models.SessionSnapshot) *Session {
	st := *snap
	if st.Loading == nil {
		st.Loading = map[models.Feature]bool{}
	}
	if st.Errors == nil {
		st.Errors = map[models.Feature]string{}
	}
	return &Session{
		id:         st.ID,
		store:      store,
		state:      st,
		lastActive: store.now(),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() *models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *models.SessionSnapshot {
	st := s.state
	st.TranscriptSegments = cloneSlice(st.TranscriptSegments)
	st.Languages = cloneSlice(st.Languages)
	st.Flashcards = cloneSlice(st.Flashcards)
	st.Quiz = cloneSlice(st.Quiz)
	st.Timeline = cloneSlice(st.Timeline)
	st.ChatHistory = cloneSlice(st.ChatHistory)
	st.Loading = make(map[models.Feature]bool, len(s.state.Loading))
	for k, v := range s.state.Loading {
		if v {
			st.Loading[k] = v
		}
	}
	st.Errors = make(map[models.Feature]string, len(s.state.Errors))
	for k, v := range s.state.Errors {
		st.Errors[k] = v
	}
	return &st
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// idleSince reports whether the session has been untouched since cutoff and
// has nothing in flight.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, busy := range s.state.Loading {
		if busy {
			return false
		}
	}
	return s.lastActive.Before(cutoff)
}

func (s *Session) touchLocked() {
	now := s.store.now()
	s.lastActive = now
	s.state.UpdatedAt = now
}

// mutate applies fn under the lock, then publishes and persists the result.
func (s *Session) mutate(ctx context.Context, fn func(st *models.SessionSnapshot)) *models.SessionSnapshot {
	s.mu.Lock()
	fn(&s.state)
	s.touchLocked()
	snap := s.snapshotLocked()
	deleted := s.deleted
	s.mu.Unlock()

	if deleted {
		return snap
	}
	s.publish(ctx, models.WSMessage{Type: MsgSessionUpdate, Payload: snap})
	s.persistSnapshot(ctx, snap)
	return snap
}

// begin marks feature as loading and clears its error. A feature that is
// already loading is rejected.
func (s *Session) begin(ctx context.Context, feature models.Feature, reset func(st *models.SessionSnapshot)) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.state.Loading[feature] {
		s.mu.Unlock()
		return ErrFeatureBusy
	}
	s.state.Loading[feature] = true
	delete(s.state.Errors, feature)
	if reset != nil {
		reset(&s.state)
	}
	s.touchLocked()
	s.mu.Unlock()

	s.publish(ctx, models.WSMessage{
		Type:    MsgFeatureUpdate,
		Payload: models.FeatureEvent{SessionID: s.id, Feature: feature, Status: "loading"},
	})
	return nil
}

// finish clears loading, then either applies the result or records err while
// keeping the previous output.
func (s *Session) finish(ctx context.Context, feature models.Feature, err error, apply func(st *models.SessionSnapshot)) {
	s.mu.Lock()
	delete(s.state.Loading, feature)
	if err != nil {
		s.state.Errors[feature] = err.Error()
	} else if apply != nil {
		apply(&s.state)
	}
	s.touchLocked()
	snap := s.snapshotLocked()
	deleted := s.deleted
	s.mu.Unlock()

	if deleted {
		s.store.log.Debug("feature finished after delete", "session_id", s.id, "feature", feature)
		return
	}
	event := models.FeatureEvent{SessionID: s.id, Feature: feature, Status: "completed"}
	if err != nil {
		event.Status = "failed"
		event.Error = err.Error()
		s.store.log.Warn("feature failed", "session_id", s.id, "feature", feature, "error", err)
	}
	s.publish(ctx, models.WSMessage{Type: MsgFeatureUpdate, Payload: event})
	s.publish(ctx, models.WSMessage{Type: MsgSessionUpdate, Payload: snap})
	s.persistSnapshot(ctx, snap)
}

func (s *Session) publish(ctx context.Context, msg models.WSMessage) {
	if p := s.store.deps.Publisher; p != nil {
		p.PublishSession(context.WithoutCancel(ctx), s.id, msg)
	}
}

func (s *Session) persist(ctx context.Context) {
	s.persistSnapshot(ctx, s.Snapshot())
}

func (s *Session) persistSnapshot(ctx context.Context, snap *models.SessionSnapshot) {
	repo := s.store.deps.Repo
	if repo == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.isDeleted() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := repo.Save(ctx, snap); err != nil {
		s.store.log.Error("session persist failed", "session_id", s.id, "error", err)
	}
}

func (s *Session) isDeleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// markDeleted stops every later publish and persist for this session.
func (s *Session) markDeleted() {
	s.mu.Lock()
	s.deleted = true
	s.mu.Unlock()
}
