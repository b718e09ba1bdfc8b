package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
	"studylens-backend/internal/prompts"
	"studylens-backend/internal/schemas"
)

const geminiProvider = "gemini"

// Generator performs one structured model call for a feature and returns the
// raw JSON text of the reply.
type Generator interface {
	Generate(ctx context.Context, feature models.Feature, parts ...genai.Part) (string, error)
}

// genaiGenerator keeps one configured model per feature so every call carries
// the feature's response schema.
type genaiGenerator struct {
	client *genai.Client
	models map[models.Feature]*genai.GenerativeModel
}

func newGenaiGenerator(ctx context.Context, apiKey, modelName string) (*genaiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &genaiGenerator{client: client, models: make(map[models.Feature]*genai.GenerativeModel)}
	for _, f := range schemas.Features() {
		def, _ := schemas.For(f)
		model := client.GenerativeModel(modelName)
		model.SetTemperature(0.3)
		model.SetTopP(0.95)
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = def.Schema
		g.models[f] = model
	}
	return g, nil
}

func (g *genaiGenerator) Generate(ctx context.Context, feature models.Feature, parts ...genai.Part) (string, error) {
	model, ok := g.models[feature]
	if !ok {
		return "", fmt.Errorf("no model configured for feature %q", feature)
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &ProviderError{Provider: geminiProvider, Err: fmt.Errorf("response blocked: %w", err)}
		}
		return "", &ProviderError{Provider: geminiProvider, Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &ProviderError{Provider: geminiProvider, Err: errors.New("no candidates returned")}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		reason := resp.Candidates[0].FinishReason
		return "", &ProviderError{Provider: geminiProvider, Err: fmt.Errorf("empty response (finish reason %s)", reason)}
	}
	return text, nil
}

func (g *genaiGenerator) Close() error {
	return g.client.Close()
}

// GeminiService is the generation gateway: it renders prompts, bounds
// concurrent model calls and returns schema-validated values.
type GeminiService struct {
	gen      Generator
	closer   func() error
	rateChan chan struct{} // Token bucket
	timeout  time.Duration
	log      *logger.Logger
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, timeout time.Duration, log *logger.Logger) (*GeminiService, error) {
	gen, err := newGenaiGenerator(context.Background(), apiKey, modelName)
	if err != nil {
		return nil, err
	}
	s := NewGeminiServiceWithGenerator(gen, concurrentReqs, timeout, log)
	s.closer = gen.Close
	return s, nil
}

// NewGeminiServiceWithGenerator builds a gateway around any Generator.
func NewGeminiServiceWithGenerator(gen Generator, concurrentReqs int, timeout time.Duration, log *logger.Logger) *GeminiService {
	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	if log == nil {
		log = logger.Nop()
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		gen:      gen,
		rateChan: rateChan,
		timeout:  timeout,
		log:      log.With("component", "gemini"),
	}
}

func (s *GeminiService) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return &RateLimitError{Message: "timeout waiting for Gemini rate slot"}
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// generate runs one model call under a rate slot and the gateway timeout.
func (s *GeminiService) generate(ctx context.Context, feature models.Feature, parts ...genai.Part) ([]byte, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.gen.Generate(ctx, feature, parts...)
	if err != nil {
		s.log.Warn("generation failed", "feature", feature, "error", err, "elapsed", time.Since(start))
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ProviderError{Provider: geminiProvider, Err: err}
	}
	s.log.Debug("generation completed", "feature", feature, "bytes", len(raw), "elapsed", time.Since(start))
	return []byte(raw), nil
}

// schemaError converts a decode failure into the gateway's ValidationError.
func schemaError(feature models.Feature, err error) error {
	var de *schemas.DecodeError
	if errors.As(err, &de) {
		fields := map[string]string{}
		if de.Field != "" {
			fields[de.Field] = de.Reason
		}
		return &ValidationError{
			Message:     fmt.Sprintf("model output for %s did not match its schema: %s", feature, de.Error()),
			Fields:      fields,
			ModelOutput: true,
		}
	}
	return &ValidationError{Message: err.Error(), ModelOutput: true}
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Message: field + " is required", Fields: map[string]string{field: "required"}}
	}
	return nil
}

func (s *GeminiService) Summarize(ctx context.Context, text string) (*models.Summary, error) {
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureSummary, genai.Text(prompts.Summary(text)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeSummary(raw)
	if err != nil {
		return nil, schemaError(models.FeatureSummary, err)
	}
	return out, nil
}

func (s *GeminiService) Explain(ctx context.Context, text string) (*models.Explanation, error) {
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureExplanation, genai.Text(prompts.Explanation(text)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeExplanation(raw)
	if err != nil {
		return nil, schemaError(models.FeatureExplanation, err)
	}
	return out, nil
}

func (s *GeminiService) CreateFlashcards(ctx context.Context, text string) (*models.FlashcardSet, error) {
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureFlashcards, genai.Text(prompts.Flashcards(text)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeFlashcards(raw)
	if err != nil {
		return nil, schemaError(models.FeatureFlashcards, err)
	}
	if n := len(out.Flashcards); n < 15 || n > 20 {
		s.log.Warn("flashcard count outside requested range", "count", n)
	}
	return out, nil
}

func (s *GeminiService) GenerateQuiz(ctx context.Context, text string) (*models.Quiz, error) {
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureQuiz, genai.Text(prompts.Quiz(text)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeQuiz(raw)
	if err != nil {
		return nil, schemaError(models.FeatureQuiz, err)
	}
	if !schemas.MeetsQuizPolicy(out) {
		s.log.Warn("quiz composition differs from requested mix", "composition", schemas.QuizComposition(out))
	}
	return out, nil
}

func (s *GeminiService) Timeline(ctx context.Context, text string) ([]models.TimelineEvent, error) {
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureTimeline, genai.Text(prompts.Timeline(text)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeTimeline(raw)
	if err != nil {
		return nil, schemaError(models.FeatureTimeline, err)
	}
	return out, nil
}

// AskDoubt answers a chat question against the transcript. history must not
// include the current message.
func (s *GeminiService) AskDoubt(ctx context.Context, transcript, message, language string, history []models.ChatTurn) (*models.Doubt, error) {
	if err := requireText("message", message); err != nil {
		return nil, err
	}
	prompt := prompts.Doubt(prompts.DoubtInput{
		Transcript: transcript,
		Message:    message,
		Language:   language,
		History:    history,
	})
	raw, err := s.generate(ctx, models.FeatureChat, genai.Text(prompt))
	if err != nil {
		return nil, err
	}
	out, normalized, err := schemas.DecodeDoubt(raw)
	if err != nil {
		return nil, schemaError(models.FeatureChat, err)
	}
	if normalized {
		s.log.Info("partial doubt moment cleared")
	}
	return out, nil
}

func (s *GeminiService) GenerateRoadmap(ctx context.Context, topic string) (*models.Roadmap, error) {
	if err := requireText("topic", topic); err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureRoadmap, genai.Text(prompts.Roadmap(topic)))
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeRoadmap(raw)
	if err != nil {
		return nil, schemaError(models.FeatureRoadmap, err)
	}
	return out, nil
}

// AnalyzeImage answers a question about a video frame given as a base64 data
// URI ("data:image/png;base64,...").
func (s *GeminiService) AnalyzeImage(ctx context.Context, question, imageDataURI string) (*models.ImageAnswer, error) {
	if err := requireText("question", question); err != nil {
		return nil, err
	}
	mimeType, data, err := ParseDataURI(imageDataURI)
	if err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, models.FeatureImage,
		genai.Text(prompts.ImageQuestion(question)),
		genai.Blob{MIMEType: mimeType, Data: data},
	)
	if err != nil {
		return nil, err
	}
	out, err := schemas.DecodeImageAnswer(raw)
	if err != nil {
		return nil, schemaError(models.FeatureImage, err)
	}
	return out, nil
}

// ParseDataURI splits a base64 data URI into its MIME type and bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	bad := func(reason string) error {
		return &ValidationError{Message: "invalid image data URI: " + reason, Fields: map[string]string{"image_data_uri": reason}}
	}

	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, bad("missing data: prefix")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, bad("missing payload")
	}
	mimeType, enc, ok := strings.Cut(meta, ";")
	if !ok || !strings.EqualFold(enc, "base64") {
		return "", nil, bad("must be base64 encoded")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", nil, bad("unsupported MIME type " + mimeType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, bad("payload is not valid base64")
	}
	if len(data) == 0 {
		return "", nil, bad("empty payload")
	}
	return mimeType, data, nil
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
