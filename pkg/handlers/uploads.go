package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/audit"
	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
	sqlutil "github.com/sheetsmith/sheetsmith-engine/pkg/sql"
)

// multipartOverhead is room for form fields and boundaries on top of the file.
const multipartOverhead = 1 << 20

// UploadsHandler accepts delimited text files for ingestion.
type UploadsHandler struct {
	ingest   services.IngestService
	maxBytes int64
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewUploadsHandler creates an uploads handler. Files larger than maxBytes
// are rejected.
func NewUploadsHandler(ingest services.IngestService, maxBytes int64, auditor *audit.SecurityAuditor, logger *zap.Logger) *UploadsHandler {
	return &UploadsHandler{ingest: ingest, maxBytes: maxBytes, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the uploads handler's routes on the given mux.
func (h *UploadsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/uploads", authMiddleware.RequireAuth(tenantMiddleware(h.Upload)))
}

// Upload handles POST /api/uploads.
// Form fields: file (required), hint, is_new_table, encoding.
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, h.logger, "file_too_large", "Uploaded file exceeds the size limit")
			return
		}
		badRequest(w, h.logger, "invalid_request", "Expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, h.logger, "missing_file", "A file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		badRequest(w, h.logger, "file_too_large", "Uploaded file exceeds the size limit")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, h.logger, "invalid_request", "Could not read uploaded file")
		return
	}

	isNewTable := false
	if raw := strings.TrimSpace(r.FormValue("is_new_table")); raw != "" {
		isNewTable, err = strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, h.logger, "invalid_is_new_table", "is_new_table must be true or false")
			return
		}
	}

	hint := r.FormValue("hint")
	result, err := h.ingest.Ingest(r.Context(), &services.IngestRequest{
		OrganizationID: owner.OrganizationID,
		UserID:         owner.UserID,
		Filename:       header.Filename,
		Content:        content,
		Hint:           hint,
		IsNewTable:     isNewTable,
		Encoding:       r.FormValue("encoding"),
	})
	if err != nil {
		var screened *sqlutil.InjectionCheckResult
		if errors.As(err, &screened) && h.auditor != nil {
			h.auditor.LogInjectionAttempt(r.Context(), audit.InjectionDetails{
				Field:       screened.Field,
				Value:       hint,
				Fingerprint: screened.Fingerprint,
				Filename:    header.Filename,
			}, r.RemoteAddr)
		}
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to encode upload response", zap.Error(err))
	}
}
