package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/conversation"
	"github.com/sheetsmith/sheetsmith-engine/pkg/llm"
	"github.com/sheetsmith/sheetsmith-engine/pkg/logging"
	"github.com/sheetsmith/sheetsmith-engine/pkg/metrics"
	"github.com/sheetsmith/sheetsmith-engine/pkg/prompts"
)

// Owner identifies whose conversation is being persisted.
type Owner struct {
	UserID         string
	OrganizationID int64
}

// GatewayConfig bounds every model call.
type GatewayConfig struct {
	// MaxContextTokens is the window budget enforced before each call.
	MaxContextTokens int
	// RequestTimeout caps one model call. Zero means no extra deadline.
	RequestTimeout time.Duration
}

// GatewayFactory builds per-request gateways that share the model client,
// persona texts and token counter.
type GatewayFactory struct {
	model    llm.ChatModel
	personas *prompts.Registry
	counter  conversation.TokenCounter
	store    conversation.MessageStore
	cfg      GatewayConfig
	logger   *zap.Logger
}

// NewGatewayFactory creates a factory. store may be nil, which disables
// persistence for every gateway.
func NewGatewayFactory(
	model llm.ChatModel,
	personas *prompts.Registry,
	counter conversation.TokenCounter,
	store conversation.MessageStore,
	cfg GatewayConfig,
	logger *zap.Logger,
) *GatewayFactory {
	return &GatewayFactory{
		model:    model,
		personas: personas,
		counter:  counter,
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("gateway"),
	}
}

// Personas returns the persona registry new sessions are built with.
func (f *GatewayFactory) Personas() *prompts.Registry {
	return f.personas
}

// Ephemeral returns a gateway over a fresh session that is never persisted.
func (f *GatewayFactory) Ephemeral() *Gateway {
	return &Gateway{factory: f, session: conversation.NewSession(f.personas)}
}

// ForSession returns a gateway over an existing session. Turns are flushed to
// the message store on behalf of owner when owner is non-nil.
func (f *GatewayFactory) ForSession(session *conversation.Session, owner *Owner) *Gateway {
	return &Gateway{factory: f, session: session, owner: owner}
}

// Gateway runs persona-specific model calls over one conversation. It is not
// safe for concurrent use.
type Gateway struct {
	factory *GatewayFactory
	session *conversation.Session
	owner   *Owner
}

// Session returns the conversation the gateway appends to.
func (g *Gateway) Session() *conversation.Session {
	return g.session
}

// GenerateCreateStatement asks for a CREATE TABLE statement able to hold the
// sample. The raw reply is returned; the caller extracts and validates it.
func (g *Gateway) GenerateCreateStatement(ctx context.Context, sample, header string, existingNames []string, extraDesc string) (string, error) {
	prompt := prompts.BuildCreateStatementPrompt(sample, header, existingNames, extraDesc)
	return g.call(ctx, prompts.PersonaSQLCode, prompt, nil, llm.CompletionRequest{})
}

// GenerateTableDescription asks for a plain-language description of a table.
func (g *Gateway) GenerateTableDescription(ctx context.Context, createStatement, sample, extraDesc string) (string, error) {
	prompt := prompts.BuildTableDescriptionPrompt(createStatement, sample, extraDesc)
	reply, err := g.call(ctx, prompts.PersonaSQLDesc, prompt, nil, llm.CompletionRequest{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(llm.StripFormatting(reply)), nil
}

// SelectTableName asks which catalog table the sample belongs to. An empty
// string means the model found no fit.
func (g *Gateway) SelectTableName(ctx context.Context, sample, extraDesc, renderedMetadata string) (string, error) {
	prompt := prompts.BuildTableSelectionPrompt(sample, extraDesc, renderedMetadata)
	reply, err := g.call(ctx, prompts.PersonaTableCategorization, prompt, nil, llm.CompletionRequest{})
	if err != nil {
		return "", err
	}
	return cleanTableReply(reply), nil
}

// GenerateChartConfig asks for an updated chart configuration. configPreview
// carries truncated data; the caller restores the full data afterwards.
func (g *Gateway) GenerateChartConfig(ctx context.Context, message, tableMetadata, chartType, configPreview string) (map[string]any, error) {
	prompt := prompts.BuildChartConfigPrompt(message, tableMetadata, chartType, configPreview)
	reply, err := g.call(ctx, prompts.PersonaNivoCharts, prompt, nil, llm.CompletionRequest{JSONMode: true})
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[prompts.ChartReply](reply)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeResponse, "chart reply is not valid JSON", false, err)
	}
	if parsed.NivoConfig == nil {
		return nil, llm.NewError(llm.ErrorTypeResponse, "chart reply has no nivoConfig", false, nil)
	}

	out := map[string]any{
		"type":       parsed.Type,
		"nivoConfig": parsed.NivoConfig,
	}
	if parsed.Title != "" {
		out["title"] = parsed.Title
	}
	if out["type"] == "" {
		out["type"] = chartType
	}
	return out, nil
}

// ExtractStructuredFields asks the vision model for records found in the
// images. A single object reply becomes a one-element list.
func (g *Gateway) ExtractStructuredFields(ctx context.Context, instructions string, imageURLs []string) ([]map[string]any, error) {
	prompt := prompts.BuildExtractionPrompt(instructions, len(imageURLs))
	reply, err := g.call(ctx, prompts.PersonaJPGDataExtraction, prompt, imageURLs, llm.CompletionRequest{Vision: true})
	if err != nil {
		return nil, err
	}
	records, err := llm.ParseRecords(reply)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeResponse, "extraction reply is not a JSON record list", false, err)
	}
	return records, nil
}

// Chat answers a free-form message with the default persona.
func (g *Gateway) Chat(ctx context.Context, userInput string) (string, error) {
	reply, err := g.call(ctx, prompts.PersonaDefault, userInput, nil, llm.CompletionRequest{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(llm.StripFormatting(reply)), nil
}

// call runs one turn: persona, user message, budget, model, reply, flush. A
// failed turn leaves the session as it was.
func (g *Gateway) call(ctx context.Context, persona prompts.Persona, text string, imageURLs []string, opts llm.CompletionRequest) (string, error) {
	f := g.factory
	cp := g.session.Checkpoint()
	g.session.SetSystemMessage(persona)
	g.session.AppendUserMessage(text, imageURLs)

	evicted := g.session.EnforceBudget(ctx, f.cfg.MaxContextTokens, f.counter)
	if evicted > 0 {
		metrics.AddEvictions(evicted)
		f.logger.Debug("Evicted history to fit context window",
			zap.String("persona", persona.Key()),
			zap.Int("evicted", evicted),
			zap.Int("remaining", g.session.Len()))
	}

	callCtx := llm.WithContext(ctx, g.callValues(persona))
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, f.cfg.RequestTimeout)
		defer cancel()
	}

	opts.Messages = g.session.Messages()
	start := time.Now()
	res, err := f.model.Complete(callCtx, opts)
	if err != nil {
		g.session.Rollback(cp)
		classified := llm.ClassifyError(err)
		metrics.ObserveLLMCall(persona.Key(), string(classified.Type), time.Since(start))
		f.logger.Error("Model call failed",
			zap.String("persona", persona.Key()),
			zap.String("error_type", string(classified.Type)),
			zap.String("error", logging.SanitizeError(classified)))
		return "", fmt.Errorf("%s call failed: %w", persona.Key(), classified)
	}
	metrics.ObserveLLMCall(persona.Key(), "ok", time.Since(start))

	if strings.TrimSpace(res.Content) == "" && persona != prompts.PersonaTableCategorization {
		g.session.Rollback(cp)
		return "", llm.NewError(llm.ErrorTypeResponse, "model returned an empty reply", false, nil)
	}

	g.session.AppendAssistantMessage(res.Content)
	g.flush(ctx)
	return res.Content, nil
}

// flush persists pending turns. A failed flush keeps the turns pending for the
// next call rather than failing a reply the user already paid for.
func (g *Gateway) flush(ctx context.Context) {
	f := g.factory
	if g.owner == nil || f.store == nil {
		return
	}
	if err := g.session.FlushToStore(ctx, f.store, g.owner.UserID, g.owner.OrganizationID); err != nil {
		f.logger.Error("Failed to persist conversation",
			zap.Int64("chat_id", g.session.ChatID()),
			zap.Error(err))
	}
}

func (g *Gateway) callValues(persona prompts.Persona) map[string]string {
	values := map[string]string{"persona": persona.Key()}
	if g.owner != nil {
		values["organization_id"] = strconv.FormatInt(g.owner.OrganizationID, 10)
	}
	if id := g.session.ChatID(); id != 0 {
		values["chat_id"] = strconv.FormatInt(id, 10)
	}
	return values
}

// cleanTableReply reduces a routing reply to a bare identifier: first line,
// no quotes or backticks, no "Table:" label, no trailing period.
func cleanTableReply(reply string) string {
	s := strings.TrimSpace(llm.StripFormatting(reply))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) >= len("table:") && strings.EqualFold(s[:len("table:")], "table:") {
		s = strings.TrimSpace(s[len("table:"):])
	}
	return strings.Trim(s, "`\"'. ")
}

// IsModelError reports whether err came from the model gateway.
func IsModelError(err error) bool {
	var llmErr *llm.Error
	return errors.As(err, &llmErr)
}
