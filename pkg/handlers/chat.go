package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// SessionHandles issues the per-browser chat session handle.
type SessionHandles interface {
	Handle(w http.ResponseWriter, r *http.Request) (string, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	UserInput string `json:"user_input" validate:"required"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	LLMOutput string `json:"llm_output"`
}

// ClearHistoryResponse reports how many messages were deleted.
type ClearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// ChatHandler serves free-form chat.
type ChatHandler struct {
	chat     services.ChatService
	sessions SessionHandles
	logger   *zap.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(chat services.ChatService, sessions SessionHandles, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/chat", authMiddleware.RequireAuth(tenantMiddleware(h.Send)))
	mux.HandleFunc("DELETE /api/chat/history", authMiddleware.RequireAuth(tenantMiddleware(h.ClearHistory)))
}

// Send handles POST /api/chat.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, h.logger, "invalid_request", err.Error())
		return
	}

	handle, err := h.sessions.Handle(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	reply, err := h.chat.Reply(r.Context(), handle, owner, req.UserInput)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ChatResponse{LLMOutput: reply}); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// ClearHistory handles DELETE /api/chat/history.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r, h.logger)
	if !ok {
		return
	}

	handle, err := h.sessions.Handle(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	n, err := h.chat.ClearHistory(r.Context(), handle, owner.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ClearHistoryResponse{Deleted: n}); err != nil {
		h.logger.Error("Failed to encode clear history response", zap.Error(err))
	}
}
