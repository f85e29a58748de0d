package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/audit"
	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// TablesHandler exposes the organization's table catalog.
type TablesHandler struct {
	catalog services.CatalogService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewTablesHandler creates a tables handler.
func NewTablesHandler(catalog services.CatalogService, auditor *audit.SecurityAuditor, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{catalog: catalog, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the tables handler's routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/tables", authMiddleware.RequireAuth(tenantMiddleware(h.List)))

	// Dropping a table affects every organization granted to it.
	mux.HandleFunc("DELETE /api/tables/{name}",
		authMiddleware.RequireRole(auth.RoleAdmin, tenantMiddleware(h.Drop)))
}

// List handles GET /api/tables.
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	descs, err := h.catalog.OrganizationCatalog(r.Context(), owner.OrganizationID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if descs == nil {
		descs = []*models.TableDescriptor{}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: descs}); err != nil {
		h.logger.Error("Failed to encode tables response", zap.Error(err))
	}
}

// Drop handles DELETE /api/tables/{name}.
// The table must be in the caller's catalog.
func (h *TablesHandler) Drop(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	name := r.PathValue("name")
	if name == "" {
		badRequest(w, h.logger, "missing_table", "Table name is required")
		return
	}
	if _, err := h.catalog.FindTable(r.Context(), owner.OrganizationID, name); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := h.catalog.DropTable(r.Context(), name); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if h.auditor != nil {
		h.auditor.LogTableDrop(r.Context(), name, r.RemoteAddr)
	}
	h.logger.Info("Table dropped by admin",
		zap.String("table", name),
		zap.String("user_id", owner.UserID))
	w.WriteHeader(http.StatusNoContent)
}
