package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
)

// MessageStore handles message, reaction and read-receipt rows in Cassandra
type MessageStore struct {
	session       *gocql.Session
	conversations *ConversationStore
}

// NewMessageStore creates a new MessageStore
func NewMessageStore(session *gocql.Session, conversations *ConversationStore) *MessageStore {
	return &MessageStore{session: session, conversations: conversations}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func uuidVal(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

const messageColumns = `
	conversation_id, created_at, message_id, sender_id, receiver_id, content, type,
	attachments, reply_to_id, metadata, is_read, read_at,
	is_edited, edited_at, is_deleted, deleted_at, updated_at
`

// scanArgs returns scan destinations matching messageColumns; decode
// finishes the conversion after a successful scan.
type messageRow struct {
	msg         domain.Message
	receiverID  uuid.UUID
	replyToID   uuid.UUID
	attachments string
	metadata    string
	readAt      time.Time
	editedAt    time.Time
	deletedAt   time.Time
}

func (r *messageRow) scanArgs() []any {
	return []any{
		&r.msg.ConversationID,
		&r.msg.CreatedAt,
		&r.msg.MessageID,
		&r.msg.SenderID,
		&r.receiverID,
		&r.msg.Content,
		&r.msg.Type,
		&r.attachments,
		&r.replyToID,
		&r.metadata,
		&r.msg.IsRead,
		&r.readAt,
		&r.msg.IsEdited,
		&r.editedAt,
		&r.msg.IsDeleted,
		&r.deletedAt,
		&r.msg.UpdatedAt,
	}
}

func (r *messageRow) decode() (*domain.Message, error) {
	msg := r.msg
	msg.ReceiverID = uuidPtr(r.receiverID)
	msg.ReplyToID = uuidPtr(r.replyToID)
	msg.ReadAt = timePtr(r.readAt)
	msg.EditedAt = timePtr(r.editedAt)
	msg.DeletedAt = timePtr(r.deletedAt)

	if r.attachments != "" {
		if err := json.Unmarshal([]byte(r.attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	if r.metadata != "" {
		if err := json.Unmarshal([]byte(r.metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &msg, nil
}

// CreateMessage inserts a message into the conversation partition and the
// id locator table
func (s *MessageStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	var attachments, metadata string
	if msg.Attachments != nil {
		encoded, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		attachments = string(encoded)
	}
	if msg.Metadata != nil {
		encoded, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(encoded)
	}

	query := `
		INSERT INTO messages_by_conversation (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if err := s.session.Query(query,
		msg.ConversationID,
		msg.CreatedAt,
		msg.MessageID,
		msg.SenderID,
		uuidVal(msg.ReceiverID),
		msg.Content,
		msg.Type,
		attachments,
		uuidVal(msg.ReplyToID),
		metadata,
		msg.IsRead,
		timeVal(msg.ReadAt),
		msg.IsEdited,
		timeVal(msg.EditedAt),
		msg.IsDeleted,
		timeVal(msg.DeletedAt),
		msg.UpdatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	locatorQuery := `INSERT INTO messages_by_id (message_id, conversation_id, created_at) VALUES (?, ?, ?)`
	if err := s.session.Query(locatorQuery, msg.MessageID, msg.ConversationID, msg.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to index message: %w", err)
	}

	return nil
}

// locate resolves a message id to its partition key
func (s *MessageStore) locate(ctx context.Context, messageID uuid.UUID) (uuid.UUID, time.Time, error) {
	query := `SELECT conversation_id, created_at FROM messages_by_id WHERE message_id = ?`

	var conversationID uuid.UUID
	var createdAt time.Time
	err := s.session.Query(query, messageID).WithContext(ctx).Scan(&conversationID, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return uuid.Nil, time.Time{}, store.ErrNotFound
		}
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to locate message: %w", err)
	}

	return conversationID, createdAt, nil
}

// GetMessage retrieves a message by ID
func (s *MessageStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	conversationID, createdAt, err := s.locate(ctx, messageID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages_by_conversation
		WHERE conversation_id = ? AND created_at = ? AND message_id = ?
	`

	row := &messageRow{}
	if err := s.session.Query(query, conversationID, createdAt, messageID).WithContext(ctx).Scan(row.scanArgs()...); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return row.decode()
}

// ListMessages retrieves messages newest first. The clustering order serves
// the time-range filters; offsets are applied on the fetched page since CQL
// has no OFFSET.
func (s *MessageStore) ListMessages(ctx context.Context, conversationID uuid.UUID, filter store.MessageFilter) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages_by_conversation
		WHERE conversation_id = ?
	`
	args := []any{conversationID}

	if filter.Before != nil {
		query += ` AND created_at < ?`
		args = append(args, *filter.Before)
	}
	if filter.After != nil {
		query += ` AND created_at > ?`
		args = append(args, *filter.After)
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit+filter.Offset)
	}

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()

	var messages []*domain.Message
	for {
		row := &messageRow{}
		if !iter.Scan(row.scanArgs()...) {
			break
		}
		msg, err := row.decode()
		if err != nil {
			iter.Close()
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if filter.Offset >= len(messages) {
		return nil, nil
	}
	messages = messages[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(messages) {
		messages = messages[:filter.Limit]
	}

	return messages, nil
}

// CountMessages counts messages in a conversation
func (s *MessageStore) CountMessages(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM messages_by_conversation WHERE conversation_id = ?`

	var count int64
	if err := s.session.Query(query, conversationID).WithContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// UpdateMessageContent edits a message. The IF condition rejects tombstoned
// rows, surfaced as ErrNotFound to match the relational backend.
func (s *MessageStore) UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string, editedAt time.Time) (*domain.Message, error) {
	conversationID, createdAt, err := s.locate(ctx, messageID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE messages_by_conversation
		SET content = ?, is_edited = true, edited_at = ?, updated_at = ?
		WHERE conversation_id = ? AND created_at = ? AND message_id = ?
		IF is_deleted = false
	`

	applied, err := s.session.Query(query, content, editedAt, editedAt, conversationID, createdAt, messageID).
		WithContext(ctx).ScanCAS(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	if !applied {
		return nil, store.ErrNotFound
	}

	return s.GetMessage(ctx, messageID)
}

// SoftDeleteMessage overwrites content with the tombstone; the row stays
func (s *MessageStore) SoftDeleteMessage(ctx context.Context, messageID uuid.UUID, tombstone string, deletedAt time.Time) (*domain.Message, error) {
	conversationID, createdAt, err := s.locate(ctx, messageID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE messages_by_conversation
		SET content = ?, is_deleted = true, deleted_at = ?, updated_at = ?
		WHERE conversation_id = ? AND created_at = ? AND message_id = ?
		IF is_deleted = false
	`

	applied, err := s.session.Query(query, tombstone, deletedAt, deletedAt, conversationID, createdAt, messageID).
		WithContext(ctx).ScanCAS(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}
	if !applied {
		return nil, store.ErrNotFound
	}

	return s.GetMessage(ctx, messageID)
}

// MarkConversationRead bulk-flips the coarse is_read flag for the receiver.
// The partition is scanned because receiver/is_read are not part of any key.
func (s *MessageStore) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) (int64, error) {
	messages, err := s.ListMessages(ctx, conversationID, store.MessageFilter{})
	if err != nil {
		return 0, err
	}

	var marked int64
	for _, msg := range messages {
		if msg.IsRead || msg.ReceiverID == nil || *msg.ReceiverID != userID {
			continue
		}
		if err := s.setRead(ctx, conversationID, msg.CreatedAt, msg.MessageID, readAt); err != nil {
			return marked, err
		}
		marked++
	}

	return marked, nil
}

func (s *MessageStore) setRead(ctx context.Context, conversationID uuid.UUID, createdAt time.Time, messageID uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE messages_by_conversation
		SET is_read = true, read_at = ?, updated_at = ?
		WHERE conversation_id = ? AND created_at = ? AND message_id = ?
	`

	if err := s.session.Query(query, readAt, readAt, conversationID, createdAt, messageID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	return nil
}

// SetMessageRead flips the coarse is_read flag on one message
func (s *MessageStore) SetMessageRead(ctx context.Context, messageID uuid.UUID, readAt time.Time) error {
	conversationID, createdAt, err := s.locate(ctx, messageID)
	if err != nil {
		return err
	}

	return s.setRead(ctx, conversationID, createdAt, messageID, readAt)
}

// UpsertReaction records a reaction; CQL INSERT is naturally idempotent here
func (s *MessageStore) UpsertReaction(ctx context.Context, reaction *domain.MessageReaction) error {
	query := `
		INSERT INTO reactions_by_message (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)
	`

	if err := s.session.Query(query, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}

	return nil
}

// DeleteReaction removes a reaction; a missing row is a silent no-op
func (s *MessageStore) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	query := `DELETE FROM reactions_by_message WHERE message_id = ? AND user_id = ? AND emoji = ?`

	if err := s.session.Query(query, messageID, userID, emoji).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	return nil
}

// ListReactions retrieves all reactions for a message
func (s *MessageStore) ListReactions(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error) {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM reactions_by_message
		WHERE message_id = ?
	`

	iter := s.session.Query(query, messageID).WithContext(ctx).Iter()

	var reactions []*domain.MessageReaction
	for {
		r := &domain.MessageReaction{}
		if !iter.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt) {
			break
		}
		reactions = append(reactions, r)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}

	return reactions, nil
}

// UpsertRead records a per-message receipt; repeat calls refresh read_at
func (s *MessageStore) UpsertRead(ctx context.Context, read *domain.MessageRead) error {
	query := `INSERT INTO reads_by_message (message_id, user_id, read_at) VALUES (?, ?, ?)`

	if err := s.session.Query(query, read.MessageID, read.UserID, read.ReadAt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to upsert read receipt: %w", err)
	}

	return nil
}

// CountUnread counts non-deleted messages not sent by the user created after
// the given point
func (s *MessageStore) CountUnread(ctx context.Context, conversationID, userID uuid.UUID, since *time.Time) (int64, error) {
	query := `
		SELECT sender_id, is_deleted
		FROM messages_by_conversation
		WHERE conversation_id = ?
	`
	args := []any{conversationID}

	if since != nil {
		query += ` AND created_at > ?`
		args = append(args, *since)
	}

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()

	var count int64
	var senderID uuid.UUID
	var isDeleted bool
	for iter.Scan(&senderID, &isDeleted) {
		if senderID != userID && !isDeleted {
			count++
		}
	}

	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}

	return count, nil
}

// SearchMessages matches non-deleted content case-insensitively. The match
// runs over fetched partitions; CQL cannot express substring predicates.
func (s *MessageStore) SearchMessages(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, query string, limit, offset int) ([]*domain.Message, error) {
	var conversationIDs []uuid.UUID
	if conversationID != nil {
		conversationIDs = []uuid.UUID{*conversationID}
	} else {
		conversations, err := s.conversations.listActiveConversations(ctx, userID, store.ConversationFilter{})
		if err != nil {
			return nil, err
		}
		for _, conv := range conversations {
			conversationIDs = append(conversationIDs, conv.ConversationID)
		}
	}

	needle := strings.ToLower(query)

	var matches []*domain.Message
	for _, id := range conversationIDs {
		messages, err := s.ListMessages(ctx, id, store.MessageFilter{})
		if err != nil {
			return nil, err
		}
		for _, msg := range messages {
			if msg.IsDeleted {
				continue
			}
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				matches = append(matches, msg)
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}

	return matches, nil
}
