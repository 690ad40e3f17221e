package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
)

// MessageStore handles message, reaction and read-receipt rows
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore creates a new MessageStore
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `
	message_id, conversation_id, sender_id, receiver_id, content, type,
	attachments, reply_to_id, metadata, is_read, read_at,
	is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	msg := &domain.Message{}
	var attachments, metadata []byte

	err := row.Scan(
		&msg.MessageID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.Type,
		&attachments,
		&msg.ReplyToID,
		&metadata,
		&msg.IsRead,
		&msg.ReadAt,
		&msg.IsEdited,
		&msg.EditedAt,
		&msg.IsDeleted,
		&msg.DeletedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return msg, nil
}

// CreateMessage inserts a new message
func (s *MessageStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	var attachments, metadata []byte
	var err error

	if msg.Attachments != nil {
		attachments, err = json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
	}
	if msg.Metadata != nil {
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	query := `
		INSERT INTO messages (
			message_id, conversation_id, sender_id, receiver_id, content, type,
			attachments, reply_to_id, metadata, is_read, read_at,
			is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = s.pool.Exec(ctx, query,
		msg.MessageID,
		msg.ConversationID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.Type,
		attachments,
		msg.ReplyToID,
		metadata,
		msg.IsRead,
		msg.ReadAt,
		msg.IsEdited,
		msg.EditedAt,
		msg.IsDeleted,
		msg.DeletedAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetMessage retrieves a message by ID
func (s *MessageStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE message_id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// ListMessages retrieves messages newest first. Tombstoned rows are included
// so deleted messages keep their position in history.
func (s *MessageStore) ListMessages(ctx context.Context, conversationID uuid.UUID, filter store.MessageFilter) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.pool.Query(ctx, query, conversationID, filter.Before, filter.After, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountMessages counts messages in a conversation
func (s *MessageStore) CountMessages(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`

	var count int64
	if err := s.pool.QueryRow(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// UpdateMessageContent edits a message. The is_deleted filter means a
// tombstoned message is not editable and surfaces as ErrNotFound.
func (s *MessageStore) UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string, editedAt time.Time) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = $3, updated_at = $3
		WHERE message_id = $1 AND is_deleted = FALSE
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, content, editedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return msg, nil
}

// SoftDeleteMessage overwrites content with the tombstone; the row stays.
func (s *MessageStore) SoftDeleteMessage(ctx context.Context, messageID uuid.UUID, tombstone string, deletedAt time.Time) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, is_deleted = TRUE, deleted_at = $3, updated_at = $3
		WHERE message_id = $1 AND is_deleted = FALSE
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, tombstone, deletedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}

	return msg, nil
}

// MarkConversationRead bulk-flips the coarse is_read flag for the receiver
func (s *MessageStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = TRUE, read_at = $3, updated_at = $3
		WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}

// SetMessageRead flips the coarse is_read flag on one message
func (s *MessageStore) SetMessageRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE messages
		SET is_read = TRUE, read_at = $2, updated_at = $2
		WHERE message_id = $1
	`

	cmdTag, err := s.pool.Exec(ctx, query, messageID, readAt)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// UpsertReaction records a reaction; re-adding the same triple is a no-op
func (s *MessageStore) UpsertReaction(ctx context.Context, reaction *domain.MessageReaction) error {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}

	return nil
}

// DeleteReaction removes a reaction; a missing row is a silent no-op
func (s *MessageStore) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	query := `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	if _, err := s.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	return nil
}

// ListReactions retrieves all reactions for a message
func (s *MessageStore) ListReactions(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error) {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	var reactions []*domain.MessageReaction
	for rows.Next() {
		r := &domain.MessageReaction{}
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}

// UpsertRead records a per-message receipt; repeat calls refresh read_at
func (s *MessageStore) UpsertRead(ctx context.Context, read *domain.MessageRead) error {
	query := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = EXCLUDED.read_at
	`

	_, err := s.pool.Exec(ctx, query, read.MessageID, read.UserID, read.ReadAt)
	if err != nil {
		return fmt.Errorf("failed to upsert read receipt: %w", err)
	}

	return nil
}

// CountUnread counts messages not sent by the user and created after the
// given point (nil counts everything)
func (s *MessageStore) CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since *time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND is_deleted = FALSE
		  AND ($3::timestamptz IS NULL OR created_at > $3)
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query, conversationID, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}

	return count, nil
}

// SearchMessages matches non-deleted content case-insensitively, scoped to
// one conversation or to every conversation the user actively participates in
func (s *MessageStore) SearchMessages(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, query string, limit, offset int) ([]*domain.Message, error) {
	var sql string
	var args []any

	if conversationID != nil {
		sql = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1
			  AND is_deleted = FALSE
			  AND content ILIKE '%' || $2 || '%'
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`
		args = []any{*conversationID, query, limit, offset}
	} else {
		sql = `
			SELECT m.message_id, m.conversation_id, m.sender_id, m.receiver_id, m.content, m.type,
			       m.attachments, m.reply_to_id, m.metadata, m.is_read, m.read_at,
			       m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at, m.updated_at
			FROM messages m
			INNER JOIN conversation_participants cp
			        ON cp.conversation_id = m.conversation_id
			WHERE cp.user_id = $1 AND cp.left_at IS NULL
			  AND m.is_deleted = FALSE
			  AND m.content ILIKE '%' || $2 || '%'
			ORDER BY m.created_at DESC
			LIMIT $3 OFFSET $4
		`
		args = []any{userID, query, limit, offset}
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
