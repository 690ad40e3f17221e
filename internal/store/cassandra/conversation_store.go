package cassandra

import (
	"context"
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

// ConversationStore handles conversation and participant rows in Cassandra
type ConversationStore struct {
	session *gocql.Session
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(session *gocql.Session) *ConversationStore {
	return &ConversationStore{session: session}
}

// timePtr converts a scanned CQL timestamp to the domain's nullable form.
// Cassandra has no NULL read distinct from the zero value for clustering-free
// columns, so zero time means unset.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// CreateConversation inserts the conversation and its initial participants.
// Cassandra has no multi-table transaction; the conversation row goes first
// so a half-applied create is visible as a conversation with missing
// participants rather than orphan membership rows.
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error {
	query := `
		INSERT INTO conversations (conversation_id, kind, name, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var name, description string
	if conv.Name != nil {
		name = *conv.Name
	}
	if conv.Description != nil {
		description = *conv.Description
	}

	if err := s.session.Query(query,
		conv.ConversationID,
		conv.Kind,
		name,
		description,
		conv.CreatedBy,
		conv.CreatedAt,
		conv.UpdatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, p := range participants {
		if err := s.writeParticipant(ctx, p); err != nil {
			return err
		}
	}

	return nil
}

func (s *ConversationStore) writeParticipant(ctx context.Context, p *domain.ConversationParticipant) error {
	query := `
		INSERT INTO participants_by_conversation (conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if err := s.session.Query(query,
		p.ConversationID,
		p.UserID,
		p.Role,
		p.JoinedAt,
		timeVal(p.LeftAt),
		timeVal(p.LastReadAt),
		p.IsMuted,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	indexQuery := `INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`
	if err := s.session.Query(indexQuery, p.UserID, p.ConversationID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to index participant: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID
func (s *ConversationStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, kind, name, description, created_by, created_at, updated_at
		FROM conversations
		WHERE conversation_id = ?
	`

	conv := &domain.Conversation{}
	var name, description string
	err := s.session.Query(query, conversationID).WithContext(ctx).Scan(
		&conv.ConversationID,
		&conv.Kind,
		&name,
		&description,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if name != "" {
		conv.Name = &name
	}
	if description != "" {
		conv.Description = &description
	}

	return conv, nil
}

// GetParticipants retrieves membership rows for a conversation
func (s *ConversationStore) GetParticipants(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*domain.ConversationParticipant, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		FROM participants_by_conversation
		WHERE conversation_id = ?
	`

	iter := s.session.Query(query, conversationID).WithContext(ctx).Iter()

	var participants []*domain.ConversationParticipant
	for {
		p := &domain.ConversationParticipant{}
		var leftAt, lastReadAt time.Time
		if !iter.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &leftAt, &lastReadAt, &p.IsMuted) {
			break
		}
		p.LeftAt = timePtr(leftAt)
		p.LastReadAt = timePtr(lastReadAt)
		if activeOnly && !p.IsActive() {
			continue
		}
		participants = append(participants, p)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	return participants, nil
}

// GetParticipant retrieves one membership row regardless of active state
func (s *ConversationStore) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		FROM participants_by_conversation
		WHERE conversation_id = ? AND user_id = ?
	`

	p := &domain.ConversationParticipant{}
	var leftAt, lastReadAt time.Time
	err := s.session.Query(query, conversationID, userID).WithContext(ctx).Scan(
		&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &leftAt, &lastReadAt, &p.IsMuted,
	)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	p.LeftAt = timePtr(leftAt)
	p.LastReadAt = timePtr(lastReadAt)
	return p, nil
}

// listActiveConversations resolves a user's membership index to active
// conversations, with kind and search filters applied in memory since CQL
// cannot express them.
func (s *ConversationStore) listActiveConversations(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) ([]*domain.Conversation, error) {
	query := `SELECT conversation_id FROM conversations_by_user WHERE user_id = ?`
	iter := s.session.Query(query, userID).WithContext(ctx).Iter()

	var ids []uuid.UUID
	var id uuid.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list user conversations: %w", err)
	}

	search := strings.ToLower(filter.Search)

	var conversations []*domain.Conversation
	for _, conversationID := range ids {
		p, err := s.GetParticipant(ctx, conversationID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !p.IsActive() {
			continue
		}

		conv, err := s.GetConversation(ctx, conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}

		if filter.Kind != "" && conv.Kind != filter.Kind {
			continue
		}
		if search != "" {
			var name, description string
			if conv.Name != nil {
				name = strings.ToLower(*conv.Name)
			}
			if conv.Description != nil {
				description = strings.ToLower(*conv.Description)
			}
			if !strings.Contains(name, search) && !strings.Contains(description, search) {
				continue
			}
		}

		conversations = append(conversations, conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

// ListByParticipant retrieves conversations where the user is an active
// participant, most recent activity first
func (s *ConversationStore) ListByParticipant(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) ([]*domain.Conversation, error) {
	conversations, err := s.listActiveConversations(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	if filter.Offset >= len(conversations) {
		return nil, nil
	}
	conversations = conversations[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(conversations) {
		conversations = conversations[:filter.Limit]
	}

	return conversations, nil
}

// CountByParticipant returns the total matching ListByParticipant
func (s *ConversationStore) CountByParticipant(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) (int64, error) {
	conversations, err := s.listActiveConversations(ctx, userID, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(conversations)), nil
}

// UpsertParticipant inserts a membership row or reactivates an existing one.
// The insert runs as a lightweight transaction so concurrent first sends for
// the same key serialize; the loser falls through to reactivation.
func (s *ConversationStore) UpsertParticipant(ctx context.Context, conversationID, userID uuid.UUID, role string) (*domain.ConversationParticipant, error) {
	insertQuery := `
		INSERT INTO participants_by_conversation (conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		IF NOT EXISTS
	`

	now := time.Now()
	applied, err := s.session.Query(insertQuery,
		conversationID, userID, role, now, time.Time{}, time.Time{}, false,
	).WithContext(ctx).ScanCAS(nil, nil, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}

	if !applied {
		// Row exists: clear left_at to reactivate.
		updateQuery := `
			UPDATE participants_by_conversation
			SET left_at = null
			WHERE conversation_id = ? AND user_id = ?
		`
		if err := s.session.Query(updateQuery, conversationID, userID).WithContext(ctx).Exec(); err != nil {
			return nil, fmt.Errorf("failed to reactivate participant: %w", err)
		}
	}

	indexQuery := `INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`
	if err := s.session.Query(indexQuery, userID, conversationID).WithContext(ctx).Exec(); err != nil {
		return nil, fmt.Errorf("failed to index participant: %w", err)
	}

	return s.GetParticipant(ctx, conversationID, userID)
}

// SetParticipantLeft stamps left_at for one participant
func (s *ConversationStore) SetParticipantLeft(ctx context.Context, conversationID, userID uuid.UUID, leftAt time.Time) error {
	query := `
		UPDATE participants_by_conversation
		SET left_at = ?
		WHERE conversation_id = ? AND user_id = ?
		IF EXISTS
	`

	applied, err := s.session.Query(query, leftAt, conversationID, userID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to set participant left: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}

// SetParticipantRole changes a participant's role
func (s *ConversationStore) SetParticipantRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	query := `
		UPDATE participants_by_conversation
		SET role = ?
		WHERE conversation_id = ? AND user_id = ?
		IF EXISTS
	`

	applied, err := s.session.Query(query, role, conversationID, userID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to set participant role: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}

// SetParticipantMuted flips the participant's mute flag
func (s *ConversationStore) SetParticipantMuted(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error {
	query := `
		UPDATE participants_by_conversation
		SET is_muted = ?
		WHERE conversation_id = ? AND user_id = ?
		IF EXISTS
	`

	applied, err := s.session.Query(query, muted, conversationID, userID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to set participant muted: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}

// AdvanceLastRead moves the coarse read position forward. CQL has no
// GREATEST, so the current value is read first and older stamps are kept.
func (s *ConversationStore) AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) error {
	p, err := s.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if p.LastReadAt != nil && p.LastReadAt.After(readAt) {
		return nil
	}

	query := `
		UPDATE participants_by_conversation
		SET last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
		IF EXISTS
	`

	applied, err := s.session.Query(query, readAt, conversationID, userID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to advance last read: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}

// TouchConversation bumps updated_at
func (s *ConversationStore) TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET updated_at = ? WHERE conversation_id = ? IF EXISTS`

	applied, err := s.session.Query(query, at, conversationID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}

// UpdateConversationMeta updates name/description, keeping nil fields
func (s *ConversationStore) UpdateConversationMeta(ctx context.Context, conversationID uuid.UUID, name, description *string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	if name == nil {
		name = conv.Name
	}
	if description == nil {
		description = conv.Description
	}

	var nameVal, descriptionVal string
	if name != nil {
		nameVal = *name
	}
	if description != nil {
		descriptionVal = *description
	}

	query := `
		UPDATE conversations
		SET name = ?, description = ?, updated_at = ?
		WHERE conversation_id = ?
		IF EXISTS
	`

	applied, err := s.session.Query(query, nameVal, descriptionVal, time.Now(), conversationID).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if !applied {
		return store.ErrNotFound
	}

	return nil
}
