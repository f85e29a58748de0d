package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// ChartConfigRequest is the body of POST /api/charts/config.
type ChartConfigRequest struct {
	ChatID      int64                `json:"chat_id" validate:"gte=0"`
	Message     string               `json:"msg" validate:"required"`
	ChartConfig services.ChartConfig `json:"chart_config"`
}

// ChartsHandler rewrites dashboard charts from natural-language requests.
type ChartsHandler struct {
	charts services.ChartService
	logger *zap.Logger
}

// NewChartsHandler creates a charts handler.
func NewChartsHandler(charts services.ChartService, logger *zap.Logger) *ChartsHandler {
	return &ChartsHandler{charts: charts, logger: logger}
}

// RegisterRoutes registers the charts handler's routes on the given mux.
func (h *ChartsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/charts/config", authMiddleware.RequireAuth(tenantMiddleware(h.Configure)))
}

// Configure handles POST /api/charts/config.
func (h *ChartsHandler) Configure(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req ChartConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, h.logger, "invalid_request", err.Error())
		return
	}

	result, err := h.charts.Configure(r.Context(), owner, &services.ChartRequest{
		ChatID:  req.ChatID,
		Message: req.Message,
		Config:  req.ChartConfig,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode chart response", zap.Error(err))
	}
}
