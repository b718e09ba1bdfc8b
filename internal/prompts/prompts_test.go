package prompts

import (
	"strings"
	"testing"

	"studylens-backend/internal/models"
)

func TestTranscriptPrompts_EmbedSource(t *testing.T) {
	text := "Photosynthesis converts light into chemical energy."
	builders := map[string]func(string) string{
		"summary":     Summary,
		"explanation": Explanation,
		"flashcards":  Flashcards,
		"quiz":        Quiz,
		"timeline":    Timeline,
	}
	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			p := build(text)
			if !strings.Contains(p, text) {
				t.Errorf("%s prompt does not contain the source text", name)
			}
		})
	}
}

func TestQuiz_RequestsFixedMix(t *testing.T) {
	p := Quiz("x")
	for _, want := range []string{
		"exactly 10 questions",
		"4 multiple-choice questions",
		"4 short-answer questions",
		"2 true/false questions",
		"exactly 4 options",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("quiz prompt missing %q", want)
		}
	}
}

func TestFlashcards_RequestsCardRange(t *testing.T) {
	if !strings.Contains(Flashcards("x"), "15-20 flashcards") {
		t.Error("flashcard prompt should request 15-20 cards")
	}
}

func TestExplanation_HasEightParts(t *testing.T) {
	p := Explanation("x")
	for i := 1; i <= 8; i++ {
		if !strings.Contains(p, "\n"+string(rune('0'+i))+". ") {
			t.Errorf("explanation prompt missing part %d", i)
		}
	}
}

func TestDoubt_LanguageNote(t *testing.T) {
	p := Doubt(DoubtInput{Transcript: "t", Message: "What is it?", Language: "Hindi"})
	if !strings.Contains(p, "Reply ONLY in the user's requested language (Hindi)") {
		t.Error("expected strict language note")
	}

	p = Doubt(DoubtInput{Transcript: "t", Message: "What is it?"})
	if strings.Contains(p, "IMPORTANT") {
		t.Error("language note should be omitted when no language is set")
	}
}

func TestDoubt_RendersHistoryInOrder(t *testing.T) {
	p := Doubt(DoubtInput{
		Transcript: "t",
		Message:    "and then?",
		History: []models.ChatTurn{
			{Role: models.RoleUser, Content: "first question"},
			{Role: models.RoleAssistant, Content: "first answer"},
		},
	})
	u := strings.Index(p, "User: first question")
	a := strings.Index(p, "Assistant: first answer")
	if u < 0 || a < 0 || u > a {
		t.Fatalf("history not rendered in order:\n%s", p)
	}
	if !strings.Contains(p, `User's Question: "and then?"`) {
		t.Error("expected the current question to be quoted")
	}
}

func TestRoadmapAndImage(t *testing.T) {
	if !strings.Contains(Roadmap("  Rust  "), "Topic: Rust\n") {
		t.Error("roadmap prompt should contain the trimmed topic")
	}
	if got := ImageQuestion("what is on the board?"); !strings.HasSuffix(got, "Question: what is on the board?") {
		t.Errorf("unexpected image prompt %q", got)
	}
}
