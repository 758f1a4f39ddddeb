package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sagechat/internal/types"
)

// ChatRepository provides data access for the chat, chat_user, and message
// tables. The scheduler only ever needs the three-call delivery path:
// resolve-or-create a chat, resolve the sender's membership, append a message.
type ChatRepository struct {
	db DBTX
}

// NewChatRepository creates a new ChatRepository backed by the given database
// connection (pool or transaction).
func NewChatRepository(db DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetOrCreateChat returns the ID of the direct chat between the two users,
// creating the chat and both memberships when none exists.
//
// The existence check joins chat_user against itself to find a chat that both
// users are members of. Creation inserts the chat row plus one chat_user row
// per participant in a single statement batch; callers wanting atomicity pass
// a transaction as the DBTX.
func (r *ChatRepository) GetOrCreateChat(ctx context.Context, initiatorID, recipientID string) (string, error) {
	var chatID string
	err := r.db.QueryRow(ctx,
		`SELECT a.chat_id
		 FROM chat_user a
		 JOIN chat_user b ON b.chat_id = a.chat_id
		 WHERE a.user_id = $1 AND b.user_id = $2
		 LIMIT 1`,
		initiatorID,
		recipientID,
	).Scan(&chatID)
	if err == nil {
		return chatID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up chat", err)
	}

	chatID = uuid.New().String()
	if _, err := r.db.Exec(ctx,
		`INSERT INTO chat (id, created_at) VALUES ($1, NOW())`,
		chatID,
	); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create chat", err)
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO chat_user (id, chat_id, user_id, created_at)
		 VALUES ($1, $2, $3, NOW()), ($4, $2, $5, NOW())`,
		uuid.New().String(),
		chatID,
		initiatorID,
		uuid.New().String(),
		recipientID,
	); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create chat memberships", err)
	}

	return chatID, nil
}

// MembershipID returns the chat_user row ID for the given user within the
// given chat. Messages are authored by membership IDs, not user IDs.
func (r *ChatRepository) MembershipID(ctx context.Context, userID, chatID string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM chat_user WHERE chat_id = $1 AND user_id = $2`,
		chatID,
		userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundChat, "user is not a member of chat", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve chat membership", err)
	}
	return id, nil
}

// AppendMessage inserts a message into the chat. The media_url column is
// NOT NULL in the chat schema, so text-only messages store an empty string.
func (r *ChatRepository) AppendMessage(ctx context.Context, chatID, membershipID, text string, messageType types.MessageType) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO message (id, chat_id, created_by, type, text, media_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, '', NOW())`,
		uuid.New().String(),
		chatID,
		membershipID,
		string(messageType),
		text,
	)
	if err != nil {
		// Surface the store's own detail: delivery diagnostics depend on it.
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert message: "+err.Error(), err)
	}
	return nil
}
