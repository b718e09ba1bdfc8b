package schemas

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"studylens-backend/internal/models"
)

// DecodeError reports model output that could not be coerced into a
// feature's schema.
type DecodeError struct {
	Feature models.Feature
	Field   string
	Reason  string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Feature, e.Field, e.Reason)
}

func invalid(f models.Feature, field, reason string) error {
	return &DecodeError{Feature: f, Field: field, Reason: reason}
}

// CleanJSON strips markdown code fences and any prose around the outermost
// JSON value the model returned.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func unmarshal(f models.Feature, raw []byte, v any) error {
	cleaned := CleanJSON(string(raw))
	if cleaned == "" {
		return invalid(f, "", "empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return invalid(f, "", "malformed JSON: "+err.Error())
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func DecodeSummary(raw []byte) (*models.Summary, error) {
	var out models.Summary
	if err := unmarshal(models.FeatureSummary, raw, &out); err != nil {
		return nil, err
	}
	if blank(out.Summary) {
		return nil, invalid(models.FeatureSummary, "summary", "is required")
	}
	return &out, nil
}

func DecodeExplanation(raw []byte) (*models.Explanation, error) {
	var out models.Explanation
	if err := unmarshal(models.FeatureExplanation, raw, &out); err != nil {
		return nil, err
	}
	if blank(out.Explanation) {
		return nil, invalid(models.FeatureExplanation, "explanation", "is required")
	}
	return &out, nil
}

func DecodeFlashcards(raw []byte) (*models.FlashcardSet, error) {
	var out models.FlashcardSet
	if err := unmarshal(models.FeatureFlashcards, raw, &out); err != nil {
		return nil, err
	}
	if len(out.Flashcards) == 0 {
		return nil, invalid(models.FeatureFlashcards, "flashcards", "must contain at least one card")
	}
	if err := validateFlashcards(models.FeatureFlashcards, "flashcards", out.Flashcards); err != nil {
		return nil, err
	}
	return &out, nil
}

func validateFlashcards(f models.Feature, path string, cards []models.Flashcard) error {
	for i, c := range cards {
		if blank(c.Question) {
			return invalid(f, fmt.Sprintf("%s[%d].question", path, i), "is required")
		}
		if blank(c.Answer) {
			return invalid(f, fmt.Sprintf("%s[%d].answer", path, i), "is required")
		}
	}
	return nil
}

// normalizeQuestionType maps the spellings models tend to produce onto the
// canonical type names.
func normalizeQuestionType(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	s = strings.NewReplacer("_", "-", " ", "-", "/", "-").Replace(s)
	switch s {
	case "multiple-choice", "mcq", "multiplechoice":
		return models.QuestionMultipleChoice
	case "short-answer", "shortanswer", "short":
		return models.QuestionShortAnswer
	case "true-false", "truefalse", "boolean":
		return models.QuestionTrueFalse
	}
	return s
}

func validateQuiz(f models.Feature, path string, questions []models.QuizQuestion) error {
	for i := range questions {
		q := &questions[i]
		field := func(name string) string { return fmt.Sprintf("%s[%d].%s", path, i, name) }

		q.Type = normalizeQuestionType(q.Type)
		switch q.Type {
		case models.QuestionMultipleChoice:
			if len(q.Options) != 4 {
				return invalid(f, field("options"), fmt.Sprintf("must have exactly 4 options, got %d", len(q.Options)))
			}
		case models.QuestionShortAnswer, models.QuestionTrueFalse:
		default:
			return invalid(f, field("type"), fmt.Sprintf("has unknown value %q", q.Type))
		}
		if blank(q.Question) {
			return invalid(f, field("question"), "is required")
		}
		if blank(q.CorrectAnswer) {
			return invalid(f, field("correctAnswer"), "is required")
		}
		if blank(q.Explanation) {
			return invalid(f, field("explanation"), "is required")
		}
	}
	return nil
}

// chapterQuiz keeps the usable questions of a roadmap chapter. Chapter quizzes
// are a few loose checks, so bad items are dropped instead of failing the
// whole roadmap.
func chapterQuiz(questions []models.QuizQuestion) []models.QuizQuestion {
	kept := questions[:0]
	for _, q := range questions {
		if blank(q.Question) || blank(q.CorrectAnswer) {
			continue
		}
		q.Type = normalizeQuestionType(q.Type)
		switch q.Type {
		case models.QuestionMultipleChoice:
			if len(q.Options) < 2 {
				continue
			}
		case models.QuestionShortAnswer, models.QuestionTrueFalse:
		default:
			if len(q.Options) >= 2 {
				q.Type = models.QuestionMultipleChoice
			} else {
				q.Type = models.QuestionShortAnswer
			}
		}
		kept = append(kept, q)
	}
	return kept
}

func DecodeQuiz(raw []byte) (*models.Quiz, error) {
	var out models.Quiz
	if err := unmarshal(models.FeatureQuiz, raw, &out); err != nil {
		return nil, err
	}
	if len(out.Quiz) == 0 {
		return nil, invalid(models.FeatureQuiz, "quiz", "must contain at least one question")
	}
	if err := validateQuiz(models.FeatureQuiz, "quiz", out.Quiz); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeTimeline accepts either a bare array or an object wrapping it under
// "timeline".
func DecodeTimeline(raw []byte) ([]models.TimelineEvent, error) {
	cleaned := CleanJSON(string(raw))
	var events []models.TimelineEvent
	if strings.HasPrefix(cleaned, "{") {
		var wrapped struct {
			Timeline []models.TimelineEvent `json:"timeline"`
		}
		if err := unmarshal(models.FeatureTimeline, raw, &wrapped); err != nil {
			return nil, err
		}
		events = wrapped.Timeline
	} else if err := unmarshal(models.FeatureTimeline, raw, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.TimelineEvent{}
	}
	for i, e := range events {
		if blank(e.Timestamp) {
			return nil, invalid(models.FeatureTimeline, fmt.Sprintf("[%d].timestamp", i), "is required")
		}
		if blank(e.Highlight) {
			return nil, invalid(models.FeatureTimeline, fmt.Sprintf("[%d].highlight", i), "is required")
		}
	}
	return events, nil
}

// DecodeDoubt decodes a tutor reply. The moment fields must be jointly present;
// a partial moment is cleared and reported through the second return value.
func DecodeDoubt(raw []byte) (*models.Doubt, bool, error) {
	var out models.Doubt
	if err := unmarshal(models.FeatureChat, raw, &out); err != nil {
		return nil, false, err
	}
	if blank(out.Answer) {
		return nil, false, invalid(models.FeatureChat, "answer", "is required")
	}
	normalized := NormalizeMoment(&out)
	return &out, normalized, nil
}

// NormalizeMoment fills seconds from a parseable timestamp and clears the
// moment fields unless all three are present. It reports whether any field
// had to be cleared.
func NormalizeMoment(d *models.Doubt) bool {
	if d.Timestamp != nil && blank(*d.Timestamp) {
		d.Timestamp = nil
	}
	if d.Chapter != nil && blank(*d.Chapter) {
		d.Chapter = nil
	}
	if d.Timestamp != nil && d.Seconds == nil {
		if secs, ok := ParseTimestamp(*d.Timestamp); ok {
			d.Seconds = &secs
		}
	}

	present := 0
	for _, set := range []bool{d.Timestamp != nil, d.Seconds != nil, d.Chapter != nil} {
		if set {
			present++
		}
	}
	if present == 0 || present == 3 {
		return false
	}
	d.Timestamp, d.Seconds, d.Chapter = nil, nil, nil
	return true
}

// ParseTimestamp converts "SS", "MM:SS" or "HH:MM:SS" into seconds.
func ParseTimestamp(ts string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

func DecodeRoadmap(raw []byte) (*models.Roadmap, error) {
	var out models.Roadmap
	if err := unmarshal(models.FeatureRoadmap, raw, &out); err != nil {
		return nil, err
	}
	if blank(out.Topic) {
		return nil, invalid(models.FeatureRoadmap, "topic", "is required")
	}
	if len(out.Levels) == 0 {
		return nil, invalid(models.FeatureRoadmap, "levels", "must contain at least one level")
	}
	for i := range out.Levels {
		lvl := &out.Levels[i]
		if blank(lvl.Stage) {
			return nil, invalid(models.FeatureRoadmap, fmt.Sprintf("levels[%d].stage", i), "is required")
		}
		for j := range lvl.Chapters {
			ch := &lvl.Chapters[j]
			path := fmt.Sprintf("levels[%d].chapters[%d]", i, j)
			if blank(ch.Title) {
				return nil, invalid(models.FeatureRoadmap, path+".title", "is required")
			}
			if err := validateFlashcards(models.FeatureRoadmap, path+".flashcards", ch.Flashcards); err != nil {
				return nil, err
			}
			ch.Quiz = chapterQuiz(ch.Quiz)
			ch.VideoLinks = nonNil(ch.VideoLinks)
			ch.PracticeTasks = nonNil(ch.PracticeTasks)
			if ch.Flashcards == nil {
				ch.Flashcards = []models.Flashcard{}
			}
			if ch.Quiz == nil {
				ch.Quiz = []models.QuizQuestion{}
			}
		}
		if lvl.Chapters == nil {
			lvl.Chapters = []models.RoadmapChapter{}
		}
	}
	out.FinalProjectIdeas = nonNil(out.FinalProjectIdeas)
	out.Resources.Books = nonNil(out.Resources.Books)
	out.Resources.CheatSheets = nonNil(out.Resources.CheatSheets)
	out.Resources.PracticeSites = nonNil(out.Resources.PracticeSites)
	return &out, nil
}

func DecodeImageAnswer(raw []byte) (*models.ImageAnswer, error) {
	var out models.ImageAnswer
	if err := unmarshal(models.FeatureImage, raw, &out); err != nil {
		return nil, err
	}
	if blank(out.Answer) {
		return nil, invalid(models.FeatureImage, "answer", "is required")
	}
	return &out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// QuizComposition counts the questions of each type.
func QuizComposition(q *models.Quiz) map[string]int {
	counts := map[string]int{}
	if q == nil {
		return counts
	}
	for _, item := range q.Quiz {
		counts[item.Type]++
	}
	return counts
}

// MeetsQuizPolicy reports whether the quiz has the requested 4/4/2 mix.
func MeetsQuizPolicy(q *models.Quiz) bool {
	if q == nil {
		return false
	}
	c := QuizComposition(q)
	return len(q.Quiz) == 10 &&
		c[models.QuestionMultipleChoice] == 4 &&
		c[models.QuestionShortAnswer] == 4 &&
		c[models.QuestionTrueFalse] == 2
}
