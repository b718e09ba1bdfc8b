package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of a session's chat history. User messages carry
// their text in Content.Answer with the moment fields left nil.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content Doubt  `json:"content"`
}

// ChatTurn is the flattened form of a ChatMessage sent to the model.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}
