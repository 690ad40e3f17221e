package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
)

// Sentinel errors shared by every backend
var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write
	ErrConflict = errors.New("conflict")
)

// ConversationFilter narrows ListByParticipant results
type ConversationFilter struct {
	Kind   string // "direct", "group" or empty for all
	Search string // case-insensitive substring over name/description
	Limit  int
	Offset int
}

// MessageFilter narrows ListMessages results
type MessageFilter struct {
	Before *time.Time
	After  *time.Time
	Limit  int
	Offset int
}

// ConversationStore is the persistence contract for conversations and
// participant membership. It enforces nothing beyond what the schema does;
// business rules live in the messaging service.
type ConversationStore interface {
	// CreateConversation inserts the conversation row and its initial
	// participant rows.
	CreateConversation(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error

	// GetConversation returns a conversation by id, or ErrNotFound.
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)

	// GetParticipants returns membership rows for a conversation. When
	// activeOnly is set, rows with left_at set are excluded.
	GetParticipants(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*domain.ConversationParticipant, error)

	// GetParticipant returns the membership row for (conversation, user)
	// regardless of active state, or ErrNotFound.
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)

	// ListByParticipant returns conversations where the user is an active
	// participant, newest activity first.
	ListByParticipant(ctx context.Context, userID uuid.UUID, filter ConversationFilter) ([]*domain.Conversation, error)

	// CountByParticipant returns the total matching ListByParticipant
	// before pagination.
	CountByParticipant(ctx context.Context, userID uuid.UUID, filter ConversationFilter) (int64, error)

	// UpsertParticipant is the atomic insert-or-reactivate primitive keyed
	// by (conversation_id, user_id): a missing row is inserted with the
	// given role, an existing row has left_at cleared. The resulting row is
	// returned. Concurrent calls for the same key must all succeed and
	// leave exactly one row.
	UpsertParticipant(ctx context.Context, conversationID, userID uuid.UUID, role string) (*domain.ConversationParticipant, error)

	// SetParticipantLeft stamps left_at for one participant.
	SetParticipantLeft(ctx context.Context, conversationID, userID uuid.UUID, leftAt time.Time) error

	// SetParticipantRole changes a participant's role.
	SetParticipantRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error

	// SetParticipantMuted flips the participant's mute flag.
	SetParticipantMuted(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error

	// AdvanceLastRead moves the participant's coarse read position forward.
	AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) error

	// TouchConversation bumps updated_at, used on every new message and
	// membership change.
	TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error

	// UpdateConversationMeta updates name/description; nil fields are kept.
	UpdateConversationMeta(ctx context.Context, conversationID uuid.UUID, name, description *string) error
}

// MessageStore is the persistence contract for messages, reactions and
// per-message read receipts.
type MessageStore interface {
	// CreateMessage inserts a message row.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// GetMessage returns a message by id, or ErrNotFound.
	GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)

	// ListMessages returns messages for a conversation ordered newest
	// first. Tombstoned rows are included so deleted messages keep their
	// position in history.
	ListMessages(ctx context.Context, conversationID uuid.UUID, filter MessageFilter) ([]*domain.Message, error)

	// CountMessages returns the total for a conversation.
	CountMessages(ctx context.Context, conversationID uuid.UUID) (int64, error)

	// UpdateMessageContent edits a message's content and stamps
	// is_edited/edited_at. Tombstoned messages are not editable: the lookup
	// excludes is_deleted rows and returns ErrNotFound for them.
	UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string, editedAt time.Time) (*domain.Message, error)

	// SoftDeleteMessage overwrites content with the tombstone and stamps
	// is_deleted/deleted_at. The row is never physically removed.
	SoftDeleteMessage(ctx context.Context, messageID uuid.UUID, tombstone string, deletedAt time.Time) (*domain.Message, error)

	// MarkConversationRead bulk-flips the coarse is_read flag on every
	// unread message addressed to the user, returning how many changed.
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) (int64, error)

	// SetMessageRead flips the coarse is_read flag on one message.
	SetMessageRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) error

	// UpsertReaction records a reaction; re-adding the same
	// (message, user, emoji) refreshes the row rather than erroring.
	UpsertReaction(ctx context.Context, reaction *domain.MessageReaction) error

	// DeleteReaction removes a reaction; a missing row is a silent no-op.
	DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error

	// ListReactions returns all reactions for a message.
	ListReactions(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error)

	// UpsertRead records a per-message receipt; repeat calls refresh
	// read_at.
	UpsertRead(ctx context.Context, read *domain.MessageRead) error

	// CountUnread counts messages in a conversation not sent by the user
	// and created after the given point (nil counts everything).
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since *time.Time) (int64, error)

	// SearchMessages matches non-deleted content case-insensitively. With a
	// conversation id the search is scoped to it; otherwise it spans every
	// conversation the user actively participates in.
	SearchMessages(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, query string, limit, offset int) ([]*domain.Message, error)
}

// Store bundles both contracts; one backend is selected at startup.
type Store interface {
	Conversations() ConversationStore
	Messages() MessageStore
}
