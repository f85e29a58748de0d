package database

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
)

// WithTenantContext creates middleware that acquires an organization-scoped
// connection. It runs after the auth middleware and reads the organization
// from the JWT claims. The connection is released when the handler returns.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.GetClaims(r.Context())
			if !ok || claims.OrganizationID <= 0 {
				logger.Error("Missing organization in claims")
				writeError(w, http.StatusBadRequest, "missing_organization", "Missing organization context")
				return
			}

			scope, err := db.WithTenant(r.Context(), claims.OrganizationID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.Int64("organization_id", claims.OrganizationID),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetTenantScope(r.Context(), scope)))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  errorCode,
		"detail": detail,
	})
}
