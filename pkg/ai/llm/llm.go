// Package llm defines the chat language model contract that drives
// the patient persona.
package llm

import (
	"context"

	"github.com/voxqa/voxqa/pkg/ai"
)

// Re-exported so callers need not import the parent ai package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// MessageRole represents the role of a message in a chat conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// ChatRequest contains parameters for a chat completion request. The
// system prompt travels separately from history so callers can keep a
// fixed persona over a sliding history window.
type ChatRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Message      Message
	TokensUsed   int
	FinishReason string
}

// LLM is the main interface for chat model providers.
type LLM interface {
	// Chat performs a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// ChatStream performs a streaming completion, yielding content
	// deltas. The channel closes when the completion finishes or the
	// context is cancelled. The session does not require streaming;
	// it exists for lower-latency consumers.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan string, error)
}
