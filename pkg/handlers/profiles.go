package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// CreateProfileRequest is the body of POST /api/profiles.
type CreateProfileRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	Instructions string  `json:"instructions" validate:"required"`
	TableName    *string `json:"table_name,omitempty" validate:"omitempty,max=63"`
}

// ProfilesHandler lists and creates data profiles.
type ProfilesHandler struct {
	profiles services.ProfileService
	logger   *zap.Logger
}

// NewProfilesHandler creates a profiles handler.
func NewProfilesHandler(profiles services.ProfileService, logger *zap.Logger) *ProfilesHandler {
	return &ProfilesHandler{profiles: profiles, logger: logger}
}

// RegisterRoutes registers the profiles handler's routes on the given mux.
func (h *ProfilesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/profiles", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/profiles", authMiddleware.RequireAuth(tenantMiddleware(h.Create)))
}

// List handles GET /api/profiles.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	profiles, err := h.profiles.List(r.Context(), owner.OrganizationID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if profiles == nil {
		profiles = []*models.DataProfile{}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: profiles}); err != nil {
		h.logger.Error("Failed to encode profiles response", zap.Error(err))
	}
}

// Create handles POST /api/profiles.
func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, h.logger, "invalid_request", err.Error())
		return
	}

	profile := &models.DataProfile{
		Name:           req.Name,
		OrganizationID: owner.OrganizationID,
		Instructions:   req.Instructions,
		TableName:      req.TableName,
	}
	if err := h.profiles.Create(r.Context(), profile); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: profile}); err != nil {
		h.logger.Error("Failed to encode profile response", zap.Error(err))
	}
}
