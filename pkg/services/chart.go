package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/conversation"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// chartPreviewRows is how many data points the model sees.
const chartPreviewRows = 5

// ChartConfig is a chart as the dashboard stores it.
type ChartConfig struct {
	Table      string         `json:"table"`
	Type       string         `json:"type" validate:"required"`
	NivoConfig map[string]any `json:"nivoConfig"`
}

// ChartRequest asks for a change to a chart. ChatID continues an earlier
// chart conversation when non-zero.
type ChartRequest struct {
	ChatID  int64
	Message string
	Config  ChartConfig
}

// ChartResult is the rewritten chart and the conversation it belongs to.
type ChartResult struct {
	ChatID int64          `json:"chat_id"`
	Config map[string]any `json:"chart_config"`
}

// ChartService rewrites chart configurations from natural-language requests.
type ChartService interface {
	Configure(ctx context.Context, owner Owner, req *ChartRequest) (*ChartResult, error)
}

type chartService struct {
	catalog  CatalogService
	gateways *GatewayFactory
	store    conversation.MessageStore
	logger   *zap.Logger
}

var _ ChartService = (*chartService)(nil)

// NewChartService creates a chart service. Chart conversations are loaded from
// and persisted to store.
func NewChartService(catalog CatalogService, gateways *GatewayFactory, store conversation.MessageStore, logger *zap.Logger) ChartService {
	return &chartService{
		catalog:  catalog,
		gateways: gateways,
		store:    store,
		logger:   logger.Named("charts"),
	}
}

func (s *chartService) Configure(ctx context.Context, owner Owner, req *ChartRequest) (*ChartResult, error) {
	var tableMetadata string
	if req.Config.Table != "" {
		desc, err := s.catalog.FindTable(ctx, owner.OrganizationID, req.Config.Table)
		if err != nil {
			return nil, err
		}
		tableMetadata = RenderForLLM([]*models.TableDescriptor{desc})
	}

	preview, fullData, err := chartPreview(req.Config.NivoConfig)
	if err != nil {
		return nil, err
	}

	session := conversation.NewSession(s.gateways.Personas())
	if err := session.Load(ctx, s.store, req.ChatID, owner.UserID, owner.OrganizationID); err != nil {
		return nil, err
	}

	reply, err := s.gateways.ForSession(session, &owner).
		GenerateChartConfig(ctx, req.Message, tableMetadata, req.Config.Type, preview)
	if err != nil {
		return nil, err
	}

	if fullData != nil {
		if nivo, ok := reply["nivoConfig"].(map[string]any); ok {
			nivo["data"] = fullData
		}
	}
	reply["table"] = req.Config.Table

	s.logger.Debug("Rewrote chart configuration",
		zap.Int64("chat_id", session.ChatID()),
		zap.String("type", fmt.Sprint(reply["type"])))
	return &ChartResult{ChatID: session.ChatID(), Config: reply}, nil
}

// chartPreview renders the configuration with its data cut to a few points
// and returns the untouched data for re-injection.
func chartPreview(nivo map[string]any) (string, any, error) {
	if nivo == nil {
		return "{}", nil, nil
	}

	preview := make(map[string]any, len(nivo))
	for k, v := range nivo {
		preview[k] = v
	}
	fullData, hasData := nivo["data"]
	if list, ok := fullData.([]any); ok && len(list) > chartPreviewRows {
		preview["data"] = list[:chartPreviewRows]
	}

	out, err := json.Marshal(preview)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode chart preview: %w", err)
	}
	if !hasData {
		return string(out), nil, nil
	}
	return string(out), fullData, nil
}
