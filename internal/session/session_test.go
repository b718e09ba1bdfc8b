package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
)

type stubGateway struct {
	mu          sync.Mutex
	fail        map[models.Feature]error
	block       map[models.Feature]chan struct{}
	started     chan models.Feature
	texts       map[models.Feature]string
	histories   [][]models.ChatTurn
	lastTopic   string
	lastLang    string
	roadmapSeen *models.Roadmap
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		fail:  map[models.Feature]error{},
		block: map[models.Feature]chan struct{}{},
		texts: map[models.Feature]string{},
	}
}

func (g *stubGateway) enter(ctx context.Context, f models.Feature, text string) error {
	g.mu.Lock()
	g.texts[f] = text
	ch := g.block[f]
	err := g.fail[f]
	started := g.started
	g.mu.Unlock()

	if started != nil {
		started <- f
	}
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *stubGateway) Summarize(ctx context.Context, text string) (*models.Summary, error) {
	if err := g.enter(ctx, models.FeatureSummary, text); err != nil {
		return nil, err
	}
	return &models.Summary{Summary: "summary of " + text}, nil
}

func (g *stubGateway) Explain(ctx context.Context, text string) (*models.Explanation, error) {
	if err := g.enter(ctx, models.FeatureExplanation, text); err != nil {
		return nil, err
	}
	return &models.Explanation{Explanation: "simple"}, nil
}

func (g *stubGateway) CreateFlashcards(ctx context.Context, text string) (*models.FlashcardSet, error) {
	if err := g.enter(ctx, models.FeatureFlashcards, text); err != nil {
		return nil, err
	}
	return &models.FlashcardSet{Flashcards: []models.Flashcard{{Question: "Q", Answer: "A"}}}, nil
}

func (g *stubGateway) GenerateQuiz(ctx context.Context, text string) (*models.Quiz, error) {
	if err := g.enter(ctx, models.FeatureQuiz, text); err != nil {
		return nil, err
	}
	return &models.Quiz{Quiz: []models.QuizQuestion{{Type: models.QuestionShortAnswer, Question: "q", CorrectAnswer: "a", Explanation: "e"}}}, nil
}

func (g *stubGateway) Timeline(ctx context.Context, text string) ([]models.TimelineEvent, error) {
	if err := g.enter(ctx, models.FeatureTimeline, text); err != nil {
		return nil, err
	}
	return []models.TimelineEvent{{Timestamp: "00:00", Highlight: "start"}}, nil
}

func (g *stubGateway) AskDoubt(ctx context.Context, transcript, message, language string, history []models.ChatTurn) (*models.Doubt, error) {
	g.mu.Lock()
	g.histories = append(g.histories, history)
	g.lastLang = language
	g.mu.Unlock()
	if err := g.enter(ctx, models.FeatureChat, transcript); err != nil {
		return nil, err
	}
	return &models.Doubt{Answer: "answer to " + message}, nil
}

func (g *stubGateway) GenerateRoadmap(ctx context.Context, topic string) (*models.Roadmap, error) {
	g.mu.Lock()
	g.lastTopic = topic
	g.mu.Unlock()
	if err := g.enter(ctx, models.FeatureRoadmap, topic); err != nil {
		return nil, err
	}
	return &models.Roadmap{Topic: topic, Levels: []models.RoadmapLevel{{Stage: "Beginner"}}}, nil
}

func (g *stubGateway) AnalyzeImage(ctx context.Context, question, imageDataURI string) (*models.ImageAnswer, error) {
	if err := g.enter(ctx, models.FeatureImage, question); err != nil {
		return nil, err
	}
	return &models.ImageAnswer{Answer: "a slide"}, nil
}

type stubFetcher struct {
	videoID string
	langs   []string
	result  *models.TranscriptResult
	err     error
}

func (f *stubFetcher) FetchTranscript(ctx context.Context, videoID string, languages []string) (*models.TranscriptResult, error) {
	f.videoID = videoID
	f.langs = languages
	return f.result, f.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []models.WSMessage
}

func (p *recordingPublisher) PublishSession(ctx context.Context, id uuid.UUID, msg models.WSMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

type memoryRepo struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]models.SessionSnapshot
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{snaps: map[uuid.UUID]models.SessionSnapshot{}}
}

func (r *memoryRepo) Save(ctx context.Context, snap *models.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[snap.ID] = *snap
	return nil
}

func (r *memoryRepo) Load(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &snap, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.snaps, id)
	return nil
}

func newTestSession(t *testing.T, gw *stubGateway) (*Store, *Session) {
	t.Helper()
	store := NewStore(Dependencies{Gateway: gw, Transcripts: &stubFetcher{}})
	sess, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return store, sess
}

func TestGenerateFeature_Success(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "the lecture")

	if err := sess.GenerateFeature(ctx, models.FeatureSummary, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Summary != "summary of the lecture" {
		t.Errorf("unexpected summary %q", snap.Summary)
	}
	if snap.Loading[models.FeatureSummary] {
		t.Error("loading flag should be cleared")
	}
	if _, ok := snap.Errors[models.FeatureSummary]; ok {
		t.Error("no error expected")
	}
}

func TestGenerateFeature_TextOverridesTranscript(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "full transcript")

	sess.GenerateFeature(ctx, models.FeatureExplanation, "just this part")
	if gw.texts[models.FeatureExplanation] != "just this part" {
		t.Errorf("expected override text, got %q", gw.texts[models.FeatureExplanation])
	}
}

func TestGenerateFeature_FailureKeepsPreviousOutput(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "t")
	sess.GenerateFeature(ctx, models.FeatureSummary, "")

	gw.fail[models.FeatureSummary] = &services.ProviderError{Provider: "gemini", Err: errors.New("boom")}
	err := sess.GenerateFeature(ctx, models.FeatureSummary, "")
	var pe *services.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	snap := sess.Snapshot()
	if snap.Summary != "summary of t" {
		t.Errorf("previous output should be kept, got %q", snap.Summary)
	}
	if snap.Errors[models.FeatureSummary] == "" {
		t.Error("expected error message on the feature")
	}
	if snap.Loading[models.FeatureSummary] {
		t.Error("loading flag should be cleared after failure")
	}
}

func TestGenerateFeature_NoTranscript(t *testing.T) {
	_, sess := newTestSession(t, newStubGateway())
	err := sess.GenerateFeature(context.Background(), models.FeatureQuiz, "")
	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := sess.Snapshot().Errors[models.FeatureQuiz]; got != msgNoTranscript {
		t.Errorf("unexpected feature error %q", got)
	}
}

func TestGenerateFeature_RejectsUnknownFeature(t *testing.T) {
	_, sess := newTestSession(t, newStubGateway())
	if err := sess.GenerateFeature(context.Background(), models.FeatureRoadmap, "x"); err == nil {
		t.Fatal("roadmap is not a transcript feature")
	}
}

func TestGenerateFeature_BusyWhileLoading(t *testing.T) {
	gw := newStubGateway()
	release := make(chan struct{})
	gw.block[models.FeatureSummary] = release
	gw.started = make(chan models.Feature, 1)
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "t")

	done := make(chan error, 1)
	go func() { done <- sess.GenerateFeature(ctx, models.FeatureSummary, "") }()
	<-gw.started

	if !sess.Snapshot().Loading[models.FeatureSummary] {
		t.Error("expected summary to be loading")
	}
	if err := sess.GenerateFeature(ctx, models.FeatureSummary, ""); !errors.Is(err, ErrFeatureBusy) {
		t.Errorf("expected ErrFeatureBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateAll_IsolatesFailures(t *testing.T) {
	gw := newStubGateway()
	gw.fail[models.FeatureQuiz] = &services.ValidationError{Message: "quiz[0].correctAnswer is required"}
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "lecture")

	if err := sess.GenerateAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Summary == "" || snap.Explanation == "" || len(snap.Flashcards) == 0 || len(snap.Timeline) == 0 {
		t.Errorf("expected successful features to be populated: %+v", snap)
	}
	if snap.Quiz != nil {
		t.Errorf("failed quiz should stay reset, got %+v", snap.Quiz)
	}
	if len(snap.Errors) != 1 || snap.Errors[models.FeatureQuiz] == "" {
		t.Errorf("expected only the quiz error, got %v", snap.Errors)
	}
	if len(snap.Loading) != 0 {
		t.Errorf("expected no loading flags, got %v", snap.Loading)
	}
	for _, f := range models.TranscriptFeatures {
		if gw.texts[f] != "lecture" {
			t.Errorf("%s ran on %q", f, gw.texts[f])
		}
	}
}

func TestGenerateAll_ResetsOutputs(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "first")
	sess.GenerateFeature(ctx, models.FeatureSummary, "")

	gw.fail[models.FeatureSummary] = errors.New("down")
	sess.GenerateAll(ctx)
	if got := sess.Snapshot().Summary; got != "" {
		t.Errorf("summary should be reset by generate-all, got %q", got)
	}
}

func TestGenerateAll_RequiresTranscript(t *testing.T) {
	_, sess := newTestSession(t, newStubGateway())
	if err := sess.GenerateAll(context.Background()); err == nil {
		t.Fatal("expected error without transcript")
	}
}

func TestSendChatMessage_HistoryExcludesPendingMessage(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "t")

	if _, err := sess.SendChatMessage(ctx, "first?", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, err := sess.SendChatMessage(ctx, "second?", "Spanish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Content.Answer != "answer to second?" {
		t.Errorf("unexpected reply %q", reply.Content.Answer)
	}

	if len(gw.histories[0]) != 0 {
		t.Errorf("first call should have empty history, got %v", gw.histories[0])
	}
	h := gw.histories[1]
	if len(h) != 2 || h[0].Content != "first?" || h[1].Content != "answer to first?" {
		t.Errorf("unexpected history %v", h)
	}
	if gw.lastLang != "Spanish" {
		t.Errorf("language not forwarded: %q", gw.lastLang)
	}
	if got := len(sess.Snapshot().ChatHistory); got != 4 {
		t.Errorf("expected 4 chat messages, got %d", got)
	}
}

func TestSendChatMessage_FailureAppendsPlaceholder(t *testing.T) {
	gw := newStubGateway()
	gw.fail[models.FeatureChat] = errors.New("model unavailable")
	_, sess := newTestSession(t, gw)
	ctx := context.Background()
	sess.SetTranscript(ctx, "t")

	if _, err := sess.SendChatMessage(ctx, "why?", ""); err == nil {
		t.Fatal("expected error")
	}
	history := sess.Snapshot().ChatHistory
	if len(history) != 2 {
		t.Fatalf("expected user message and placeholder, got %d", len(history))
	}
	last := history[1]
	if last.Role != models.RoleAssistant || last.Content.Answer != "Error: model unavailable" {
		t.Errorf("unexpected placeholder %+v", last)
	}
	if last.Content.Timestamp != nil || last.Content.Seconds != nil || last.Content.Chapter != nil {
		t.Error("placeholder must carry no moment")
	}
}

func TestSendChatMessage_NoTranscript(t *testing.T) {
	_, sess := newTestSession(t, newStubGateway())
	sess.SendChatMessage(context.Background(), "hello", "")
	history := sess.Snapshot().ChatHistory
	if len(history) != 2 || history[1].Content.Answer != "Error: No transcript available for chat." {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestGenerateRoadmap(t *testing.T) {
	gw := newStubGateway()
	_, sess := newTestSession(t, gw)
	ctx := context.Background()

	if err := sess.GenerateRoadmap(ctx, "  Kubernetes "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Roadmap == nil || snap.Roadmap.Topic != "Kubernetes" || snap.RoadmapTopic != "Kubernetes" {
		t.Fatalf("unexpected roadmap state %+v", snap)
	}

	gw.fail[models.FeatureRoadmap] = errors.New("down")
	sess.GenerateRoadmap(ctx, "")
	snap = sess.Snapshot()
	if snap.Roadmap != nil {
		t.Error("roadmap should be cleared when a new generation starts")
	}
	if gw.lastTopic != "Kubernetes" {
		t.Errorf("empty topic should fall back to the stored one, got %q", gw.lastTopic)
	}
	if snap.Errors[models.FeatureRoadmap] != "down" {
		t.Errorf("unexpected roadmap error %q", snap.Errors[models.FeatureRoadmap])
	}
}

func TestAnalyzeFrame(t *testing.T) {
	_, sess := newTestSession(t, newStubGateway())
	ans, err := sess.AnalyzeFrame(context.Background(), "what is this?", "data:image/png;base64,aGk=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := sess.Snapshot()
	if ans.Answer != "a slide" || snap.ImageAnswer == nil || snap.FrameQuestion != "what is this?" {
		t.Errorf("unexpected state %+v", snap)
	}
}

func TestFetchTranscript(t *testing.T) {
	text := "Hello world."
	fetcher := &stubFetcher{result: &models.TranscriptResult{
		TranscriptText: &text,
		Segments:       []models.TranscriptSegment{{Text: "hello world"}},
	}}
	store := NewStore(Dependencies{Gateway: newStubGateway(), Transcripts: fetcher})
	sess, _ := store.Create(context.Background())
	ctx := context.Background()

	if err := sess.FetchTranscript(ctx); err == nil {
		t.Fatal("expected error without a video URL")
	}

	if _, err := sess.SetYoutubeURL(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.SetLanguages(ctx, []string{" fr ", "", "de"})
	if err := sess.FetchTranscript(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.videoID != "dQw4w9WgXcQ" || len(fetcher.langs) != 2 || fetcher.langs[0] != "fr" {
		t.Errorf("unexpected fetch args %q %v", fetcher.videoID, fetcher.langs)
	}
	snap := sess.Snapshot()
	if snap.Transcript != "Hello world." || len(snap.TranscriptSegments) != 1 {
		t.Errorf("unexpected transcript state %+v", snap)
	}
	if _, ok := snap.Errors[models.FeatureTranscript]; ok {
		t.Error("stale transcript error should be cleared")
	}

	sess.SetTranscript(ctx, "edited")
	if snap := sess.Snapshot(); snap.TranscriptSegments != nil {
		t.Error("manual edit should drop segments")
	}
}

func TestStore_PublishesUpdates(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewStore(Dependencies{Gateway: newStubGateway(), Transcripts: &stubFetcher{}, Publisher: pub})
	sess, _ := store.Create(context.Background())
	ctx := context.Background()
	sess.SetTranscript(ctx, "t")
	sess.GenerateFeature(ctx, models.FeatureTimeline, "")

	var featureEvents, sessionUpdates int
	for _, m := range pub.msgs {
		switch m.Type {
		case MsgFeatureUpdate:
			featureEvents++
		case MsgSessionUpdate:
			sessionUpdates++
		}
	}
	if featureEvents != 2 {
		t.Errorf("expected loading and completed events, got %d", featureEvents)
	}
	if sessionUpdates < 2 {
		t.Errorf("expected session updates, got %d", sessionUpdates)
	}
}

func TestStore_RestoresFromRepository(t *testing.T) {
	repo := newMemoryRepo()
	deps := Dependencies{Gateway: newStubGateway(), Transcripts: &stubFetcher{}, Repo: repo}
	ctx := context.Background()

	first := NewStore(deps)
	sess, _ := first.Create(ctx)
	sess.SetTranscript(ctx, "persisted transcript")

	second := NewStore(deps)
	restored, err := second.Get(ctx, sess.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Snapshot().Transcript != "persisted transcript" {
		t.Errorf("unexpected restored transcript %q", restored.Snapshot().Transcript)
	}

	if err := second.Delete(ctx, sess.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewStore(deps).Get(ctx, sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestStore_GetAndDeleteUnknown(t *testing.T) {
	store := NewStore(Dependencies{Gateway: newStubGateway(), Transcripts: &stubFetcher{}})
	if _, err := store.Get(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_SweepRemovesIdleSessions(t *testing.T) {
	store := NewStore(Dependencies{Gateway: newStubGateway(), Transcripts: &stubFetcher{}, IdleTTL: time.Hour})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	idle, _ := store.Create(ctx)
	now = now.Add(30 * time.Minute)
	active, _ := store.Create(ctx)
	now = now.Add(45 * time.Minute)

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 session swept, got %d", removed)
	}
	if _, err := store.Get(ctx, idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle session should be gone")
	}
	if _, err := store.Get(ctx, active.ID()); err != nil {
		t.Errorf("active session should remain: %v", err)
	}
}

func TestStore_DeleteDuringActionStaysDeleted(t *testing.T) {
	gw := newStubGateway()
	release := make(chan struct{})
	gw.block[models.FeatureSummary] = release
	gw.started = make(chan models.Feature, 1)
	repo := newMemoryRepo()
	pub := &recordingPublisher{}
	store := NewStore(Dependencies{Gateway: gw, Transcripts: &stubFetcher{}, Repo: repo, Publisher: pub})
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	sess.SetTranscript(ctx, "some transcript")

	done := make(chan error, 1)
	go func() { done <- sess.GenerateFeature(ctx, models.FeatureSummary, "") }()
	<-gw.started

	if err := store.Delete(ctx, sess.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	pub.mu.Lock()
	published := len(pub.msgs)
	pub.mu.Unlock()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Get(ctx, sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if _, err := repo.Load(ctx, sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Error("finished action wrote the deleted session back")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != published {
		t.Errorf("expected no updates after delete, got %d more", len(pub.msgs)-published)
	}
	if err := sess.GenerateFeature(ctx, models.FeatureTimeline, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on deleted session, got %v", err)
	}
}
