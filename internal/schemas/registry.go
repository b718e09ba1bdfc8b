// Package schemas declares the structured-output contract for every generated
// artifact and the decode-and-validate boundary for model replies.
package schemas

import (
	"github.com/google/generative-ai-go/genai"

	"studylens-backend/internal/models"
)

// Definition pairs a feature with the response schema sent to the model.
type Definition struct {
	Feature     models.Feature
	Name        string
	Description string
	Schema      *genai.Schema
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func nullableStr(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc, Nullable: true}
}

func strList(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: &genai.Schema{Type: genai.TypeString}}
}

func object(required []string, props map[string]*genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

var flashcardSchema = object([]string{"question", "answer"}, map[string]*genai.Schema{
	"question": str("The question for the flashcard."),
	"answer":   str("The answer to the question."),
})

var quizQuestionSchema = object([]string{"type", "question", "correctAnswer", "explanation"}, map[string]*genai.Schema{
	"type": {
		Type:        genai.TypeString,
		Format:      "enum",
		Enum:        []string{models.QuestionMultipleChoice, models.QuestionShortAnswer, models.QuestionTrueFalse},
		Description: "The question type.",
	},
	"question":      str("The question text."),
	"options":       strList("Exactly four options for multiple-choice questions. Omit for other types."),
	"correctAnswer": str("The correct answer. For multiple-choice it must equal one of the options."),
	"explanation":   str("Why the answer is correct."),
})

var registry = map[models.Feature]*Definition{
	models.FeatureSummary: {
		Feature:     models.FeatureSummary,
		Name:        "summary",
		Description: "A structured summary of the transcript.",
		Schema: object([]string{"summary"}, map[string]*genai.Schema{
			"summary": str("A structured multi-section summary of the lecture transcript."),
		}),
	},
	models.FeatureExplanation: {
		Feature:     models.FeatureExplanation,
		Name:        "explanation",
		Description: "A simplified (ELI5) explanation.",
		Schema: object([]string{"explanation"}, map[string]*genai.Schema{
			"explanation": str("The simplified explanation of the text."),
		}),
	},
	models.FeatureFlashcards: {
		Feature:     models.FeatureFlashcards,
		Name:        "flashcards",
		Description: "A difficulty-ordered flashcard set.",
		Schema: object([]string{"flashcards"}, map[string]*genai.Schema{
			"flashcards": {Type: genai.TypeArray, Items: flashcardSchema, Description: "An array of flashcards generated from the text."},
		}),
	},
	models.FeatureQuiz: {
		Feature:     models.FeatureQuiz,
		Name:        "quiz",
		Description: "A fixed ten-question quiz.",
		Schema: object([]string{"quiz"}, map[string]*genai.Schema{
			"quiz": {Type: genai.TypeArray, Items: quizQuestionSchema, Description: "The quiz questions in increasing difficulty."},
		}),
	},
	models.FeatureTimeline: {
		Feature:     models.FeatureTimeline,
		Name:        "timeline",
		Description: "Key moments in chronological order.",
		Schema: &genai.Schema{
			Type: genai.TypeArray,
			Items: object([]string{"timestamp", "highlight"}, map[string]*genai.Schema{
				"timestamp": str("The timestamp of the key moment."),
				"highlight": str("The description of the key moment."),
			}),
		},
	},
	models.FeatureChat: {
		Feature:     models.FeatureChat,
		Name:        "doubt",
		Description: "A tutor reply with an optional relevant moment.",
		Schema: object([]string{"answer"}, map[string]*genai.Schema{
			"answer":    str("A concise, easy-to-understand answer."),
			"timestamp": nullableStr("The exact timestamp, e.g. \"01:23\" or \"01:05:33\", or null."),
			"seconds":   {Type: genai.TypeNumber, Nullable: true, Description: "The timestamp in total seconds, or null."},
			"chapter":   nullableStr("The chapter or section title containing the answer, or null."),
		}),
	},
	models.FeatureRoadmap: {
		Feature:     models.FeatureRoadmap,
		Name:        "roadmap",
		Description: "A multi-stage learning roadmap.",
		Schema: object([]string{"topic", "levels", "finalProjectIdeas", "revisionPlan", "resources"}, map[string]*genai.Schema{
			"topic": str("The roadmap topic."),
			"levels": {
				Type:        genai.TypeArray,
				Description: "Ordered skill levels from beginner to mastery.",
				Items: object([]string{"stage", "chapters"}, map[string]*genai.Schema{
					"stage": str("The level name, e.g. Beginner."),
					"chapters": {
						Type: genai.TypeArray,
						Items: object([]string{"title", "explanation", "videoLinks", "practiceTasks", "flashcards", "quiz", "timeRequired"}, map[string]*genai.Schema{
							"title":         str("Chapter title."),
							"explanation":   str("A simple explanation of the chapter."),
							"videoLinks":    strList("Relevant YouTube video links."),
							"practiceTasks": strList("Hands-on practice tasks."),
							"flashcards":    {Type: genai.TypeArray, Items: flashcardSchema},
							"quiz":          {Type: genai.TypeArray, Items: quizQuestionSchema},
							"timeRequired":  str("Estimated time, e.g. \"3 hours\"."),
						}),
					},
				}),
			},
			"finalProjectIdeas": strList("Project ideas that apply the learned skills."),
			"revisionPlan":      str("A revision plan."),
			"resources": object([]string{"books", "cheatSheets", "practiceSites"}, map[string]*genai.Schema{
				"books":         strList("Recommended books."),
				"cheatSheets":   strList("Cheat sheet links."),
				"practiceSites": strList("Practice websites."),
			}),
		}),
	},
	models.FeatureImage: {
		Feature:     models.FeatureImage,
		Name:        "image-answer",
		Description: "An answer about a video frame.",
		Schema: object([]string{"answer"}, map[string]*genai.Schema{
			"answer": str("The answer to the question about the image."),
		}),
	},
}

// For returns the schema definition registered for a feature.
func For(f models.Feature) (*Definition, bool) {
	d, ok := registry[f]
	return d, ok
}

// Features lists every feature with a registered schema.
func Features() []models.Feature {
	out := make([]models.Feature, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	return out
}
