// Package llm talks to the generative model providers.
package llm

import (
	"context"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// CompletionRequest is one model call over a full message window.
type CompletionRequest struct {
	Messages []models.ConversationMessage
	// JSONMode asks the provider for a single JSON object reply.
	JSONMode bool
	// Vision routes the call to the image-capable model.
	Vision bool
}

// CompletionResult is the model's reply plus usage.
type CompletionResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatModel is implemented by every provider client. Use it for dependency
// injection so tests can swap in MockChatModel.
type ChatModel interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// GetModel returns the configured text model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

var (
	_ ChatModel = (*Client)(nil)
	_ ChatModel = (*AnthropicClient)(nil)
	_ ChatModel = (*MockChatModel)(nil)
)
