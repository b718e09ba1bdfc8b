package session

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
)

const msgNoTranscript = "No transcript available."

func noTranscript() error {
	return &services.ValidationError{Message: msgNoTranscript, Fields: map[string]string{"transcript": "required"}}
}

// SetYoutubeURL stores the video URL and its parsed id.
func (s *Session) SetYoutubeURL(ctx context.Context, url string) (*models.SessionSnapshot, error) {
	videoID, err := services.ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, func(st *models.SessionSnapshot) {
		st.YoutubeURL = strings.TrimSpace(url)
		st.VideoID = videoID
	}), nil
}

// SetTranscript replaces the transcript text. Segments from a previous fetch
// no longer describe the text and are dropped.
func (s *Session) SetTranscript(ctx context.Context, transcript string) *models.SessionSnapshot {
	return s.mutate(ctx, func(st *models.SessionSnapshot) {
		st.Transcript = transcript
		st.TranscriptSegments = nil
	})
}

func (s *Session) SetLanguages(ctx context.Context, languages []string) *models.SessionSnapshot {
	var cleaned []string
	for _, l := range languages {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	return s.mutate(ctx, func(st *models.SessionSnapshot) {
		st.Languages = cleaned
	})
}

func (s *Session) SetRoadmapTopic(ctx context.Context, topic string) *models.SessionSnapshot {
	return s.mutate(ctx, func(st *models.SessionSnapshot) {
		st.RoadmapTopic = topic
	})
}

// FetchTranscript loads the transcript for the stored video id using the
// stored language preference.
func (s *Session) FetchTranscript(ctx context.Context) error {
	s.mu.Lock()
	videoID := s.state.VideoID
	langs := cloneSlice(s.state.Languages)
	s.mu.Unlock()

	if err := s.begin(ctx, models.FeatureTranscript, nil); err != nil {
		return err
	}

	var (
		result *models.TranscriptResult
		err    error
	)
	defer func() {
		s.finish(ctx, models.FeatureTranscript, err, func(st *models.SessionSnapshot) {
			st.Transcript = result.PlainText()
			st.TranscriptSegments = result.Segments
		})
	}()

	if videoID == "" {
		err = &services.ValidationError{Message: "YouTube URL is required", Fields: map[string]string{"url": "required"}}
		return err
	}
	result, err = s.store.deps.Transcripts.FetchTranscript(ctx, videoID, langs)
	return err
}

// GenerateFeature produces one transcript-derived output. text overrides the
// session transcript when non-empty.
func (s *Session) GenerateFeature(ctx context.Context, feature models.Feature, text string) error {
	if !feature.IsTranscriptFeature() {
		return &services.ValidationError{
			Message: fmt.Sprintf("unknown feature %q", feature),
			Fields:  map[string]string{"feature": "invalid"},
		}
	}
	if err := s.begin(ctx, feature, nil); err != nil {
		return err
	}
	return s.runFeature(ctx, feature, text)
}

// runFeature performs the call for a feature already marked loading.
func (s *Session) runFeature(ctx context.Context, feature models.Feature, text string) (err error) {
	var apply func(st *models.SessionSnapshot)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to generate %s: %v", feature, r)
		}
		s.finish(ctx, feature, err, apply)
	}()

	if strings.TrimSpace(text) == "" {
		s.mu.Lock()
		text = s.state.Transcript
		s.mu.Unlock()
	}
	if strings.TrimSpace(text) == "" {
		return noTranscript()
	}

	gw := s.store.deps.Gateway
	switch feature {
	case models.FeatureSummary:
		out, gerr := gw.Summarize(ctx, text)
		if gerr != nil {
			return gerr
		}
		apply = func(st *models.SessionSnapshot) { st.Summary = out.Summary }
	case models.FeatureExplanation:
		out, gerr := gw.Explain(ctx, text)
		if gerr != nil {
			return gerr
		}
		apply = func(st *models.SessionSnapshot) { st.Explanation = out.Explanation }
	case models.FeatureFlashcards:
		out, gerr := gw.CreateFlashcards(ctx, text)
		if gerr != nil {
			return gerr
		}
		apply = func(st *models.SessionSnapshot) { st.Flashcards = out.Flashcards }
	case models.FeatureQuiz:
		out, gerr := gw.GenerateQuiz(ctx, text)
		if gerr != nil {
			return gerr
		}
		apply = func(st *models.SessionSnapshot) { st.Quiz = out.Quiz }
	case models.FeatureTimeline:
		out, gerr := gw.Timeline(ctx, text)
		if gerr != nil {
			return gerr
		}
		apply = func(st *models.SessionSnapshot) { st.Timeline = out }
	}
	return nil
}

// GenerateAll resets the five transcript outputs and regenerates them
// concurrently from one transcript snapshot. Each feature succeeds or fails
// on its own; the returned error only reports that nothing could start.
func (s *Session) GenerateAll(ctx context.Context) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	text := s.state.Transcript
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return noTranscript()
	}
	for _, f := range models.TranscriptFeatures {
		if s.state.Loading[f] {
			s.mu.Unlock()
			return ErrFeatureBusy
		}
	}
	for _, f := range models.TranscriptFeatures {
		s.state.Loading[f] = true
		delete(s.state.Errors, f)
	}
	delete(s.state.Errors, models.FeatureChat)
	s.state.Summary = ""
	s.state.Explanation = ""
	s.state.Flashcards = nil
	s.state.Quiz = nil
	s.state.Timeline = nil
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(ctx, models.WSMessage{Type: MsgSessionUpdate, Payload: snap})

	var g errgroup.Group
	for _, f := range models.TranscriptFeatures {
		feature := f
		g.Go(func() error {
			// Failures are recorded on the feature itself.
			_ = s.runFeature(ctx, feature, text)
			return nil
		})
	}
	return g.Wait()
}

// SendChatMessage appends the user's message, asks the tutor with the prior
// history and appends the reply, or an error placeholder when the call fails.
func (s *Session) SendChatMessage(ctx context.Context, message, language string) (*models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &services.ValidationError{Message: "message is required", Fields: map[string]string{"message": "required"}}
	}

	var (
		history    []models.ChatTurn
		transcript string
	)
	err := s.begin(ctx, models.FeatureChat, func(st *models.SessionSnapshot) {
		for _, m := range st.ChatHistory {
			history = append(history, models.ChatTurn{Role: m.Role, Content: m.Content.Answer})
		}
		st.ChatHistory = append(st.ChatHistory, models.ChatMessage{
			Role:    models.RoleUser,
			Content: models.Doubt{Answer: message},
		})
		transcript = st.Transcript
	})
	if err != nil {
		return nil, err
	}

	var reply *models.Doubt
	if strings.TrimSpace(transcript) == "" {
		err = &services.ValidationError{Message: "No transcript available for chat.", Fields: map[string]string{"transcript": "required"}}
	} else {
		reply, err = s.store.deps.Gateway.AskDoubt(ctx, transcript, message, language, history)
	}

	answer := models.ChatMessage{Role: models.RoleAssistant}
	if err != nil {
		answer.Content = models.Doubt{Answer: "Error: " + err.Error()}
	} else {
		answer.Content = *reply
	}
	s.finish(ctx, models.FeatureChat, nil, func(st *models.SessionSnapshot) {
		st.ChatHistory = append(st.ChatHistory, answer)
	})
	return &answer, err
}

// GenerateRoadmap builds a roadmap for topic, or the stored topic when empty.
// The previous roadmap is cleared when generation starts.
func (s *Session) GenerateRoadmap(ctx context.Context, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		s.mu.Lock()
		topic = strings.TrimSpace(s.state.RoadmapTopic)
		s.mu.Unlock()
	}
	if topic == "" {
		return &services.ValidationError{Message: "topic is required", Fields: map[string]string{"topic": "required"}}
	}

	err := s.begin(ctx, models.FeatureRoadmap, func(st *models.SessionSnapshot) {
		st.RoadmapTopic = topic
		st.Roadmap = nil
	})
	if err != nil {
		return err
	}

	roadmap, err := s.store.deps.Gateway.GenerateRoadmap(ctx, topic)
	s.finish(ctx, models.FeatureRoadmap, err, func(st *models.SessionSnapshot) {
		st.Roadmap = roadmap
	})
	return err
}

// AnalyzeFrame answers a question about a captured video frame.
func (s *Session) AnalyzeFrame(ctx context.Context, question, imageDataURI string) (*models.ImageAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &services.ValidationError{Message: "question is required", Fields: map[string]string{"question": "required"}}
	}
	err := s.begin(ctx, models.FeatureImage, func(st *models.SessionSnapshot) {
		st.FrameQuestion = question
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.store.deps.Gateway.AnalyzeImage(ctx, question, imageDataURI)
	s.finish(ctx, models.FeatureImage, err, func(st *models.SessionSnapshot) {
		st.ImageAnswer = answer
	})
	return answer, err
}
