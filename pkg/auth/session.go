package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// ChatSessionName is the cookie that carries the caller's chat session handle.
const ChatSessionName = "chat-session"

const sessionKeyHandle = "handle"

// SessionStore hands out stable chat-session handles through a signed cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie store keyed by the SHA-256 of secret.
// The secret must be stable across restarts and replicas.
func NewSessionStore(secret string, secure bool, maxAgeSeconds int) *SessionStore {
	key := sha256.Sum256([]byte(secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}
}

// Handle returns the chat-session handle for the request, minting and saving
// a new one when the cookie is missing or unreadable.
func (s *SessionStore) Handle(w http.ResponseWriter, r *http.Request) (string, error) {
	session, err := s.store.Get(r, ChatSessionName)
	if err != nil {
		// A cookie signed with an old key decodes with an error but still
		// yields a fresh session we can overwrite.
		session, err = s.store.New(r, ChatSessionName)
		if session == nil {
			return "", fmt.Errorf("failed to create chat session: %w", err)
		}
	}

	if handle, ok := session.Values[sessionKeyHandle].(string); ok && handle != "" {
		return handle, nil
	}

	handle := uuid.NewString()
	session.Values[sessionKeyHandle] = handle
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save chat session: %w", err)
	}
	return handle, nil
}
