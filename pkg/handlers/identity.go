package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// requireOwner reads the caller's identity from the request claims. On
// failure it writes a 401 and returns false.
func requireOwner(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (services.Owner, bool) {
	userID, orgID, err := auth.Identity(r.Context())
	if err != nil {
		if werr := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return services.Owner{}, false
	}
	return services.Owner{UserID: userID, OrganizationID: orgID}, true
}

func badRequest(w http.ResponseWriter, logger *zap.Logger, code, detail string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, detail); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
