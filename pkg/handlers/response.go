package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// TenantMiddleware acquires an organization-scoped database connection for
// the wrapped handler.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ApiResponse is the envelope for successful responses.
type ApiResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, detail string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":  errorCode,
		"detail": detail,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into dst and validates its struct tags.
// The returned error text is safe to show to the caller.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.New("invalid request body")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
}

// writeServiceError maps a service error onto a status code and writes it.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code, detail := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, detail); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func classifyError(err error) (int, string, string) {
	var ingestErr *services.IngestError
	if errors.As(err, &ingestErr) {
		if ingestErr.Kind == services.KindInternal {
			return http.StatusInternalServerError, ingestErr.Kind.String(), ingestErr.Detail
		}
		return http.StatusBadRequest, ingestErr.Kind.String(), ingestErr.Detail
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, apperrors.ErrUnsafeInput), errors.Is(err, services.ErrProfileNameRequired):
		return http.StatusBadRequest, "bad_request", err.Error()
	case services.IsModelError(err):
		return http.StatusBadGateway, "model_error", "The language model request failed"
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error"
	}
}
