// Package chat implements the delivery boundary the scheduler and milestone
// notifier send through. Delivery is three store calls: resolve or create the
// direct chat between sender and recipient, resolve the sender's membership
// within it, and append the message.
package chat

import (
	"context"
	"log/slog"

	"sagechat/internal/types"
)

// ChatStore abstracts the chat-table operations the deliverer needs.
// Implemented by db.ChatRepository.
type ChatStore interface {
	GetOrCreateChat(ctx context.Context, initiatorID, recipientID string) (string, error)
	MembershipID(ctx context.Context, userID, chatID string) (string, error)
	AppendMessage(ctx context.Context, chatID, membershipID, text string, messageType types.MessageType) error
}

// Deliverer sends messages from one user to another through the chat layer.
type Deliverer struct {
	store  ChatStore
	logger *slog.Logger
}

// NewDeliverer creates a Deliverer over the given chat store.
func NewDeliverer(store ChatStore, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{store: store, logger: logger}
}

// Deliver appends a message of the given type from sender to recipient,
// creating the chat between them if none exists yet. Any failure is wrapped
// as an upstream delivery error so callers can distinguish it from their own
// store failures.
func (d *Deliverer) Deliver(ctx context.Context, senderID, recipientID, content string, messageType types.MessageType) error {
	chatID, err := d.store.GetOrCreateChat(ctx, senderID, recipientID)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamChatDelivery, "failed to resolve chat", err)
	}

	membershipID, err := d.store.MembershipID(ctx, senderID, chatID)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamChatDelivery, "failed to resolve sender membership", err)
	}

	if err := d.store.AppendMessage(ctx, chatID, membershipID, content, messageType); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamChatDelivery, "failed to append message: "+err.Error(), err)
	}

	d.logger.InfoContext(ctx, "message delivered",
		"chat_id", chatID,
		"recipient_id", recipientID,
		"message_type", string(messageType),
	)

	return nil
}
