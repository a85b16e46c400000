package provider

import (
	"context"
)

// Client names the supported language capability backends.
type Client string

const (
	OpenAI Client = "openai"
)

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions tunes a single completion call.
type CompleteOptions struct {
	// JSON requests strict JSON output from the model.
	JSON bool
	// MaxTokens overrides the configured token limit when positive.
	MaxTokens int
}

// LLM is the language capability: one completion per call, failures returned as errors.
type LLM interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)
}

// Embedder turns texts into vectors, one per input and in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	LLM
	Embedder
}

// Conversation builds the usual system + user message pair. An empty system prompt is omitted.
func Conversation(system, user string) []Message {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	return append(messages, Message{Role: RoleUser, Content: user})
}
