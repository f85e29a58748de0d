package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sheetsmith/sheetsmith-engine/pkg/database"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// ConversationRepository persists chat turns.
type ConversationRepository interface {
	// NextChatID allocates a fresh chat id from engine_chat_id_seq.
	NextChatID(ctx context.Context) (int64, error)

	// InsertMessages writes the messages in order, one row each, and fills in
	// their IDs.
	InsertMessages(ctx context.Context, msgs []*models.ConversationMessage) error

	// ListByChat returns a chat's messages ordered by timestamp then id. Only
	// rows owned by userID within orgID are returned, so another owner's chat
	// reads as empty.
	ListByChat(ctx context.Context, chatID int64, userID string, orgID int64) ([]*models.ConversationMessage, error)

	// DeleteByUser removes every message the user owns. Returns the row count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type conversationRepository struct{}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository() ConversationRepository {
	return &conversationRepository{}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) NextChatID(ctx context.Context) (int64, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	var id int64
	if err := scope.Conn.QueryRow(ctx, `SELECT nextval('engine_chat_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate chat id: %w", err)
	}
	return id, nil
}

func (r *conversationRepository) InsertMessages(ctx context.Context, msgs []*models.ConversationMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	for _, msg := range msgs {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("failed to encode message content: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO engine_conversation_messages
				(chat_id, user_id, organization_id, llm_type, role, content, timestamp, is_user)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			msg.ChatID, msg.UserID, msg.OrganizationID, msg.LLMType,
			string(msg.Role), content, msg.Timestamp, msg.IsUser,
		).Scan(&msg.ID)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (r *conversationRepository) ListByChat(ctx context.Context, chatID int64, userID string, orgID int64) ([]*models.ConversationMessage, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, chat_id, user_id, organization_id, llm_type, role, content, timestamp, is_user
		FROM engine_conversation_messages
		WHERE chat_id = $1 AND user_id = $2 AND organization_id = $3
		ORDER BY timestamp, id`, chatID, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return out, nil
}

func (r *conversationRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM engine_conversation_messages WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*models.ConversationMessage, error) {
	var (
		msg     models.ConversationMessage
		role    string
		content []byte
	)
	err := row.Scan(&msg.ID, &msg.ChatID, &msg.UserID, &msg.OrganizationID, &msg.LLMType,
		&role, &content, &msg.Timestamp, &msg.IsUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = models.MessageRole(role)
	if err := json.Unmarshal(content, &msg.Content); err != nil {
		return nil, fmt.Errorf("failed to decode message %d content: %w", msg.ID, err)
	}
	return &msg, nil
}
