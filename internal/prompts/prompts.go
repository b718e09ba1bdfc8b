// Package prompts renders the natural-language instructions sent to the model
// for each study feature.
package prompts

import (
	"fmt"
	"strings"

	"studylens-backend/internal/models"
)

// QuizMix is the question-type distribution requested for a transcript quiz.
var QuizMix = struct {
	MultipleChoice, ShortAnswer, TrueFalse int
}{4, 4, 2}

func writeSource(b *strings.Builder, label, text string) {
	b.WriteString(label)
	b.WriteString(":\n\"\"\"\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\"\"\"\n")
}

func Summary(text string) string {
	var b strings.Builder

	// Layer 1: Role
	b.WriteString("You are an expert educational content analyst. Your task is to create a structured summary of the following lecture transcript.\n\n")

	// Layer 2: Structure
	b.WriteString("Organize the summary into these sections, in this order:\n")
	b.WriteString("1. **Overview**: two or three sentences on what the lecture covers and why it matters.\n")
	b.WriteString("2. **Key Concepts**: each important concept with a short definition.\n")
	b.WriteString("3. **Key Takeaways**: a bulleted list of the most important points.\n")
	b.WriteString("4. **Practical Applications**: where the ideas are used in practice.\n")
	b.WriteString("5. **Conclusion**: a short wrap-up.\n\n")

	// Layer 3: Guidelines
	b.WriteString("Guidelines:\n")
	b.WriteString("- Use markdown headings and bullets inside the summary string.\n")
	b.WriteString("- Stay faithful to the transcript. Do not invent facts.\n")
	b.WriteString("- Keep it concise and easy to scan.\n\n")

	// Layer 4: Output
	b.WriteString("Return a JSON object with a single field \"summary\" containing the full summary.\n\n")

	// Layer 5: Transcript
	writeSource(&b, "Transcript", text)
	return b.String()
}

func Explanation(text string) string {
	var b strings.Builder

	b.WriteString("Explain the following text in simple terms, as if you were explaining it to a five-year-old (ELI5).\n\n")

	b.WriteString("Structure the explanation in eight parts:\n")
	b.WriteString("1. The big idea in one sentence.\n")
	b.WriteString("2. An everyday analogy that captures it.\n")
	b.WriteString("3. The key pieces, each in plain words.\n")
	b.WriteString("4. How the pieces fit together, step by step.\n")
	b.WriteString("5. A concrete real-life example.\n")
	b.WriteString("6. A common misunderstanding and why it is wrong.\n")
	b.WriteString("7. Why it matters.\n")
	b.WriteString("8. A one-line recap.\n\n")

	b.WriteString("Avoid jargon. When a technical term is unavoidable, define it with an analogy.\n")
	b.WriteString("Return a JSON object with a single field \"explanation\".\n\n")

	writeSource(&b, "Text", text)
	return b.String()
}

func Flashcards(text string) string {
	var b strings.Builder

	// Layer 1: Role
	b.WriteString("You are an expert educational content creator specializing in creating effective study materials. Your task is to generate high-quality flashcards from the provided text.\n\n")

	// Layer 2: Requirements
	b.WriteString("REQUIREMENTS:\n")
	b.WriteString("1. Create 15-20 flashcards covering the most important concepts and facts\n")
	b.WriteString("2. Questions should test understanding, not just memorization\n")
	b.WriteString("3. Answers should be concise (1-3 sentences), clear, and accurate\n")
	b.WriteString("4. Use progressively harder questions (start with basic concepts, move to advanced)\n")
	b.WriteString("5. Include both definitional and application-based questions\n")
	b.WriteString("6. Avoid overly complex or ambiguous questions\n")
	b.WriteString("7. Ensure each Q&A pair is self-contained and meaningful\n\n")

	// Layer 3: Guidelines
	b.WriteString("GUIDELINES FOR QUESTIONS:\n")
	b.WriteString("- Use various question types: \"What is...\", \"How does...\", \"Why...\", \"Explain...\"\n")
	b.WriteString("- Make questions specific and clear, not vague\n")
	b.WriteString("- Avoid yes/no questions; use open-ended format\n\n")
	b.WriteString("GUIDELINES FOR ANSWERS:\n")
	b.WriteString("- Start directly with the answer (no \"The answer is...\")\n")
	b.WriteString("- Use simple, clear language and include key terms where applicable\n\n")

	// Layer 4: Output
	b.WriteString("Return a JSON object {\"flashcards\": [{\"question\": \"...\", \"answer\": \"...\"}]}.\n\n")

	// Layer 5: Source
	writeSource(&b, "TEXT TO EXTRACT FLASHCARDS FROM", text)
	return b.String()
}

func Quiz(text string) string {
	total := QuizMix.MultipleChoice + QuizMix.ShortAnswer + QuizMix.TrueFalse
	var b strings.Builder

	// Layer 1: Role
	b.WriteString("You are an AI quiz generator. Generate a quiz based on the following transcript that tests understanding of the key concepts.\n\n")

	// Layer 2: Composition
	fmt.Fprintf(&b, "Generate exactly %d questions:\n", total)
	fmt.Fprintf(&b, "- %d multiple-choice questions (type \"%s\") with exactly 4 options each; correctAnswer must match one option exactly.\n", QuizMix.MultipleChoice, models.QuestionMultipleChoice)
	fmt.Fprintf(&b, "- %d short-answer questions (type \"%s\") with no options.\n", QuizMix.ShortAnswer, models.QuestionShortAnswer)
	fmt.Fprintf(&b, "- %d true/false questions (type \"%s\"); correctAnswer is \"True\" or \"False\".\n\n", QuizMix.TrueFalse, models.QuestionTrueFalse)

	// Layer 3: Difficulty
	b.WriteString("Order the questions from easy recall to harder application and analysis.\n")
	b.WriteString("Every question needs an explanation of why the answer is correct.\n\n")

	// Layer 4: Output
	b.WriteString("Return a JSON object {\"quiz\": [{\"type\", \"question\", \"options\", \"correctAnswer\", \"explanation\"}]}.\n\n")

	// Layer 5: Transcript
	writeSource(&b, "Transcript", text)
	return b.String()
}

func Timeline(text string) string {
	var b strings.Builder
	b.WriteString("You are an expert at identifying key moments in a video transcript and generating a timeline.\n")
	b.WriteString("Given the following transcript, identify the key moments and generate a timeline with timestamps and descriptions.\n")
	b.WriteString("List the moments in chronological order. Use the timestamps that appear in the transcript when present.\n\n")
	b.WriteString("Return a JSON array: [{\"timestamp\": \"00:00\", \"highlight\": \"...\"}].\n\n")
	writeSource(&b, "Transcript", text)
	return b.String()
}

// DoubtInput carries everything the tutor prompt needs.
type DoubtInput struct {
	Transcript string
	Message    string
	Language   string
	History    []models.ChatTurn
}

// LanguageNote is the strict reply-language instruction, empty when no
// language was requested.
func LanguageNote(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return ""
	}
	return fmt.Sprintf("IMPORTANT: Reply ONLY in the user's requested language (%s). Do not include an English translation or transliteration. If you are unable to produce a reply in that language, respond briefly in English explaining you cannot comply.", language)
}

func Doubt(in DoubtInput) string {
	var b strings.Builder

	// Layer 1: Role and language
	b.WriteString("You are an AI assistant helping a user understand a video transcript. Your goal is to answer their questions, find the most relevant timestamp, and identify the chapter.")
	if note := LanguageNote(in.Language); note != "" {
		b.WriteString(" ")
		b.WriteString(note)
	}
	b.WriteString("\n\n")

	// Layer 2: Task
	b.WriteString("Analyze the user's question and the provided transcript. Find the most relevant section in the transcript that answers the question.\n\n")
	b.WriteString("Based on that section, provide:\n")
	b.WriteString("1. A concise, easy-to-understand answer.\n")
	b.WriteString("2. The exact timestamp (e.g., \"01:23\" or \"15:42\" or \"01:05:33\"). Extract it directly. If no specific timestamp is relevant, return null for the timestamp, seconds, and chapter.\n")
	b.WriteString("3. The total number of seconds for that timestamp.\n")
	b.WriteString("4. The title of the chapter or section containing the answer, if chapters are present in the transcript.\n\n")

	// Layer 3: History
	if len(in.History) > 0 {
		b.WriteString("Here is the chat history:\n")
		for _, turn := range in.History {
			if turn.Role == models.RoleUser {
				fmt.Fprintf(&b, "User: %s\n", turn.Content)
			} else {
				fmt.Fprintf(&b, "Assistant: %s\n", turn.Content)
			}
		}
		b.WriteString("\n")
	}

	// Layer 4: Transcript and question
	writeSource(&b, "Transcript", in.Transcript)
	fmt.Fprintf(&b, "\nUser's Question: %q\n", strings.TrimSpace(in.Message))
	return b.String()
}

func Roadmap(topic string) string {
	var b strings.Builder
	b.WriteString("You are an expert curriculum designer and AI assistant. Your task is to generate a comprehensive, structured learning roadmap for the given topic. The roadmap should guide a user from beginner to mastery.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n\n", strings.TrimSpace(topic))
	b.WriteString("Please adhere to the following guidelines:\n")
	b.WriteString("- The tone should be simple, encouraging, and student-friendly.\n")
	b.WriteString("- Explain complex concepts as you would to a 10-year-old.\n")
	b.WriteString("- All topics must be in a logical, chronological order.\n")
	b.WriteString("- For each chapter, suggest relevant YouTube video links, practice tasks, and estimate the time required.\n")
	b.WriteString("- Also for each chapter, generate a few flashcards (question and answer) and a few multiple-choice quiz questions with exactly 4 options.\n")
	b.WriteString("- Include ideas for a final project to apply the learned skills.\n")
	b.WriteString("- Suggest a revision plan.\n")
	b.WriteString("- Provide a list of supplementary resources like books, cheat sheets, and practice websites.\n\n")
	b.WriteString("Generate the output in the specified JSON format.\n")
	return b.String()
}

func ImageQuestion(question string) string {
	return "Analyze the following video frame and answer the user's question. Question: " + strings.TrimSpace(question)
}
