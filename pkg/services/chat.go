package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/conversation"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
)

// ChatService answers free-form chat messages over a per-handle session.
type ChatService interface {
	// Reply appends userInput to the handle's conversation and returns the
	// assistant's answer. Both turns are persisted for owner.
	Reply(ctx context.Context, handle string, owner Owner, userInput string) (string, error)

	// ClearHistory forgets the handle's in-memory session and deletes every
	// persisted message of the user.
	ClearHistory(ctx context.Context, handle, userID string) (int64, error)
}

type chatService struct {
	sessions      *conversation.Registry
	gateways      *GatewayFactory
	conversations repositories.ConversationRepository
	logger        *zap.Logger
}

var _ ChatService = (*chatService)(nil)

// NewChatService creates a chat service.
func NewChatService(
	sessions *conversation.Registry,
	gateways *GatewayFactory,
	conversations repositories.ConversationRepository,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		sessions:      sessions,
		gateways:      gateways,
		conversations: conversations,
		logger:        logger.Named("chat"),
	}
}

func (s *chatService) Reply(ctx context.Context, handle string, owner Owner, userInput string) (string, error) {
	session, release := s.sessions.Acquire(sessionKey(owner.UserID, handle))
	defer release()

	if err := session.Load(ctx, nil, 0, owner.UserID, owner.OrganizationID); err != nil {
		return "", err
	}
	return s.gateways.ForSession(session, &owner).Chat(ctx, userInput)
}

// sessionKey scopes a client handle to the authenticated user, so a handle
// presented by another user never reaches this user's session.
func sessionKey(userID, handle string) string {
	return userID + "\x00" + handle
}

func (s *chatService) ClearHistory(ctx context.Context, handle, userID string) (int64, error) {
	s.sessions.Remove(sessionKey(userID, handle))
	n, err := s.conversations.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	s.logger.Info("Cleared chat history",
		zap.String("user_id", userID),
		zap.Int64("messages", n))
	return n, nil
}
