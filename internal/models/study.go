package models

// Feature names one of the AI-generated study outputs.
type Feature string

const (
	FeatureSummary     Feature = "summary"
	FeatureExplanation Feature = "explanation"
	FeatureFlashcards  Feature = "flashcards"
	FeatureQuiz        Feature = "quiz"
	FeatureTimeline    Feature = "timeline"
	FeatureChat        Feature = "chat"
	FeatureRoadmap     Feature = "roadmap"
	FeatureImage       Feature = "image"
	FeatureTranscript  Feature = "transcript"
)

// TranscriptFeatures are the five outputs derived from a transcript, in the
// order "generate all" fires them.
var TranscriptFeatures = []Feature{
	FeatureSummary,
	FeatureExplanation,
	FeatureFlashcards,
	FeatureQuiz,
	FeatureTimeline,
}

func (f Feature) IsTranscriptFeature() bool {
	for _, tf := range TranscriptFeatures {
		if tf == f {
			return true
		}
	}
	return false
}

type Summary struct {
	Summary string `json:"summary"`
}

type Explanation struct {
	Explanation string `json:"explanation"`
}

type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FlashcardSet struct {
	Flashcards []Flashcard `json:"flashcards"`
}

const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionShortAnswer    = "short-answer"
	QuestionTrueFalse      = "true-false"
)

type QuizQuestion struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

type Quiz struct {
	Quiz []QuizQuestion `json:"quiz"`
}

type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Highlight string `json:"highlight"`
}

// Doubt is the tutor's reply. Timestamp, Seconds and Chapter are either all
// set or all nil.
type Doubt struct {
	Answer    string   `json:"answer"`
	Timestamp *string  `json:"timestamp"`
	Seconds   *float64 `json:"seconds"`
	Chapter   *string  `json:"chapter"`
}

type ImageAnswer struct {
	Answer string `json:"answer"`
}

type RoadmapChapter struct {
	Title         string         `json:"title"`
	Explanation   string         `json:"explanation"`
	VideoLinks    []string       `json:"videoLinks"`
	PracticeTasks []string       `json:"practiceTasks"`
	Flashcards    []Flashcard    `json:"flashcards"`
	Quiz          []QuizQuestion `json:"quiz"`
	TimeRequired  string         `json:"timeRequired"`
}

type RoadmapLevel struct {
	Stage    string           `json:"stage"`
	Chapters []RoadmapChapter `json:"chapters"`
}

type RoadmapResources struct {
	Books         []string `json:"books"`
	CheatSheets   []string `json:"cheatSheets"`
	PracticeSites []string `json:"practiceSites"`
}

type Roadmap struct {
	Topic             string           `json:"topic"`
	Levels            []RoadmapLevel   `json:"levels"`
	FinalProjectIdeas []string         `json:"finalProjectIdeas"`
	RevisionPlan      string           `json:"revisionPlan"`
	Resources         RoadmapResources `json:"resources"`
}

type GenerateFeatureRequest struct {
	Text string `json:"text"`
}

type RoadmapRequest struct {
	Topic string `json:"topic"`
}

type FrameAnalysisRequest struct {
	Question     string `json:"question"`
	ImageDataURI string `json:"image_data_uri"`
}
