package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

const (
	anthropicEndpoint         = "https://api.anthropic.com/v1"
	anthropicDefaultMaxTokens = 4096
)

// AnthropicClient serves the text personas through the Anthropic Messages API.
// Image parts are rejected; deployments that extract from images use an
// OpenAI-compatible vision model.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewAnthropicClient creates a client. The API key is required.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the window as one Messages request. System messages are
// lifted into the request's system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	system, messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	temperature := c.temperature
	request := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      system,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	}

	fields := append(contextFields(ctx),
		zap.String("model", c.model),
		zap.Int("messages", len(messages)))
	c.logger.Debug("LLM request", fields...)

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		c.logger.Error("LLM request failed",
			append(fields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		classified := ClassifyError(err)
		classified.Model = c.model
		classified.Endpoint = anthropicEndpoint
		return nil, classified
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &Error{Type: ErrorTypeResponse, Message: "no text in response", Model: c.model, Endpoint: anthropicEndpoint}
	}

	c.logger.Info("LLM request completed",
		append(fields,
			zap.Int("prompt_tokens", resp.Usage.InputTokens),
			zap.Int("completion_tokens", resp.Usage.OutputTokens),
			zap.Duration("elapsed", time.Since(start)))...)

	return &CompletionResult{
		Content:          text.String(),
		Model:            c.model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func toAnthropicMessages(msgs []models.ConversationMessage) (string, []anthropic.Message, error) {
	var system []string
	out := make([]anthropic.Message, 0, len(msgs))

	for i := range msgs {
		msg := &msgs[i]
		if hasImages(msg) {
			return "", nil, NewError(ErrorTypeRequest, "image input is not supported by the anthropic client", false, nil)
		}
		text := msg.Text()

		switch msg.Role {
		case models.RoleSystem:
			system = append(system, text)
		case models.RoleAssistant:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
			})
		default:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
			})
		}
	}
	return strings.Join(system, "\n\n"), out, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the Messages API base URL.
func (c *AnthropicClient) GetEndpoint() string {
	return anthropicEndpoint
}
