package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// ExtractionRequest is the body of POST /api/extractions.
type ExtractionRequest struct {
	Profile   string   `json:"profile" validate:"required"`
	ImageURLs []string `json:"image_urls" validate:"required,min=1,max=10,dive,required"`
}

// ExtractionsHandler reads structured records out of document images.
type ExtractionsHandler struct {
	extraction services.ExtractionService
	logger     *zap.Logger
}

// NewExtractionsHandler creates an extractions handler.
func NewExtractionsHandler(extraction services.ExtractionService, logger *zap.Logger) *ExtractionsHandler {
	return &ExtractionsHandler{extraction: extraction, logger: logger}
}

// RegisterRoutes registers the extractions handler's routes on the given mux.
func (h *ExtractionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/extractions", authMiddleware.RequireAuth(tenantMiddleware(h.Extract)))
}

// Extract handles POST /api/extractions.
func (h *ExtractionsHandler) Extract(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req ExtractionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, h.logger, "invalid_request", err.Error())
		return
	}

	result, err := h.extraction.Extract(r.Context(), owner, &services.ExtractionRequest{
		Profile:   req.Profile,
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to encode extraction response", zap.Error(err))
	}
}
