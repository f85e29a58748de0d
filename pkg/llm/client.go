package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// Client talks to OpenAI-compatible chat completion endpoints.
type Client struct {
	client      *openai.Client
	endpoint    string
	model       string
	visionModel string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// Config holds configuration for creating a model client.
type Config struct {
	Provider        string  // "openai" or "anthropic"
	Endpoint        string  // Base URL, e.g. "https://api.openai.com/v1"
	Model           string  // Text model, e.g. "gpt-4o"
	VisionModel     string  // Image-capable model; defaults to Model
	APIKey          string  // Optional for local endpoints
	MaxOutputTokens int     // 0 leaves the provider default
	Temperature     float64 // Sampling temperature
}

func (c *Config) visionModel() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}

// NewClient creates an OpenAI-compatible client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    clientConfig.BaseURL,
		model:       cfg.Model,
		visionModel: cfg.visionModel(),
		maxTokens:   cfg.MaxOutputTokens,
		temperature: float32(cfg.Temperature),
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the message window as one chat completion.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	model := c.model
	if req.Vision {
		model = c.visionModel
	}

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	fields := append(contextFields(ctx),
		zap.String("model", model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("json_mode", req.JSONMode))
	c.logger.Debug("LLM request", fields...)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		c.logger.Error("LLM request failed",
			append(fields, zap.Duration("elapsed", time.Since(start)), zap.Error(err))...)
		return nil, c.classify(err, model)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Type: ErrorTypeResponse, Message: "no choices in response", Model: model, Endpoint: c.endpoint}
	}

	c.logger.Info("LLM request completed",
		append(fields,
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Duration("elapsed", time.Since(start)))...)

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// toOpenAIMessages keeps text-only messages in the plain Content field and
// switches to MultiContent as soon as an image part is present.
func toOpenAIMessages(msgs []models.ConversationMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		if !hasImages(msg) {
			out = append(out, openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Text()})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Content))
		for _, p := range msg.Content {
			switch p.Type {
			case models.PartTypeText:
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			case models.PartTypeImageURL:
				if p.ImageURL == nil {
					continue
				}
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    p.ImageURL.URL,
						Detail: openai.ImageURLDetail(p.ImageURL.Detail),
					},
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: string(msg.Role), MultiContent: parts})
	}
	return out
}

func hasImages(msg *models.ConversationMessage) bool {
	for _, p := range msg.Content {
		if p.Type == models.PartTypeImageURL {
			return true
		}
	}
	return false
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) classify(err error, model string) error {
	classified := ClassifyError(err)
	if classified.Model == "" {
		classified.Model = model
	}
	if classified.Endpoint == "" {
		classified.Endpoint = c.endpoint
	}
	return classified
}
