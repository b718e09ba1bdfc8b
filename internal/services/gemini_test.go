package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"studylens-backend/internal/models"
)

type stubGenerator struct {
	mu       sync.Mutex
	replies  map[models.Feature]string
	err      error
	calls    []models.Feature
	lastText string
	lastBlob *genai.Blob
}

func (g *stubGenerator) Generate(ctx context.Context, feature models.Feature, parts ...genai.Part) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, feature)
	for _, p := range parts {
		switch v := p.(type) {
		case genai.Text:
			g.lastText = string(v)
		case genai.Blob:
			b := v
			g.lastBlob = &b
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return g.replies[feature], nil
}

func newTestGateway(gen Generator) *GeminiService {
	return NewGeminiServiceWithGenerator(gen, 2, time.Second, nil)
}

func TestGateway_Summarize(t *testing.T) {
	gen := &stubGenerator{replies: map[models.Feature]string{
		models.FeatureSummary: "```json\n{\"summary\":\"**Overview**\"}\n```",
	}}
	out, err := newTestGateway(gen).Summarize(context.Background(), "lecture text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Summary != "**Overview**" {
		t.Errorf("unexpected summary %q", out.Summary)
	}
	if !strings.Contains(gen.lastText, "lecture text") {
		t.Error("prompt should contain the transcript")
	}
}

func TestGateway_RejectsEmptyInputWithoutCalling(t *testing.T) {
	gen := &stubGenerator{}
	_, err := newTestGateway(gen).Summarize(context.Background(), "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.ModelOutput {
		t.Error("empty input is a caller error")
	}
	if len(gen.calls) != 0 {
		t.Errorf("expected no model calls, got %d", len(gen.calls))
	}
}

func TestGateway_SchemaViolationIsValidationError(t *testing.T) {
	gen := &stubGenerator{replies: map[models.Feature]string{
		models.FeatureQuiz: `{"quiz":[{"type":"short-answer","question":"q","explanation":"e"}]}`,
	}}
	_, err := newTestGateway(gen).GenerateQuiz(context.Background(), "text")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !ve.ModelOutput {
		t.Error("schema violation should be marked as model output")
	}
	if _, ok := ve.Fields["quiz[0].correctAnswer"]; !ok {
		t.Errorf("expected correctAnswer field error, got %v", ve.Fields)
	}
}

func TestGateway_ProviderFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection reset")}
	_, err := newTestGateway(gen).Explain(context.Background(), "text")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "gemini" {
		t.Errorf("unexpected provider %q", pe.Provider)
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected exactly one call without retry, got %d", len(gen.calls))
	}
}

func TestGateway_AskDoubt(t *testing.T) {
	gen := &stubGenerator{replies: map[models.Feature]string{
		models.FeatureChat: `{"answer":"Because of gravity.","timestamp":"02:05","seconds":null,"chapter":"Forces"}`,
	}}
	history := []models.ChatTurn{{Role: models.RoleUser, Content: "earlier"}}
	d, err := newTestGateway(gen).AskDoubt(context.Background(), "transcript", "Why does it fall?", "French", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Seconds == nil || *d.Seconds != 125 {
		t.Errorf("expected seconds derived from timestamp, got %v", d.Seconds)
	}
	if !strings.Contains(gen.lastText, "(French)") || !strings.Contains(gen.lastText, "User: earlier") {
		t.Error("prompt should carry language note and history")
	}
}

func TestGateway_AnalyzeImage(t *testing.T) {
	gen := &stubGenerator{replies: map[models.Feature]string{
		models.FeatureImage: `{"answer":"A diagram of a cell."}`,
	}}
	out, err := newTestGateway(gen).AnalyzeImage(context.Background(), "What is shown?", "data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Answer != "A diagram of a cell." {
		t.Errorf("unexpected answer %q", out.Answer)
	}
	if gen.lastBlob == nil || gen.lastBlob.MIMEType != "image/png" || string(gen.lastBlob.Data) != "hello" {
		t.Errorf("unexpected image part %+v", gen.lastBlob)
	}
}

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"valid jpeg", "data:image/jpeg;base64,aGVsbG8=", false},
		{"no prefix", "image/png;base64,aGVsbG8=", true},
		{"not base64", "data:image/png,hello", true},
		{"not an image", "data:text/plain;base64,aGVsbG8=", true},
		{"bad payload", "data:image/png;base64,!!!", true},
		{"empty payload", "data:image/png;base64,", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseDataURI(tc.uri)
			if (err != nil) != tc.wantErr {
				t.Errorf("ParseDataURI(%q) error = %v, wantErr %v", tc.uri, err, tc.wantErr)
			}
		})
	}
}

type blockingGenerator struct {
	inFlight, peak int32
	release        chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, feature models.Feature, parts ...genai.Part) (string, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	defer atomic.AddInt32(&g.inFlight, -1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return `{"summary":"ok"}`, nil
}

func TestGateway_BoundsConcurrentCalls(t *testing.T) {
	gen := &blockingGenerator{release: make(chan struct{})}
	s := NewGeminiServiceWithGenerator(gen, 2, 5*time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Summarize(context.Background(), "text")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	if peak := atomic.LoadInt32(&gen.peak); peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestGateway_TimeoutIsProviderError(t *testing.T) {
	gen := &blockingGenerator{release: make(chan struct{})}
	s := NewGeminiServiceWithGenerator(gen, 1, 20*time.Millisecond, nil)

	_, err := s.Summarize(context.Background(), "text")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
