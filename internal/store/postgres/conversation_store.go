package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
)

// ConversationStore handles conversation and participant rows
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// CreateConversation inserts the conversation and its initial participants
// in one transaction.
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (
			conversation_id, kind, name, description, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = tx.Exec(ctx, query,
		conv.ConversationID,
		conv.Kind,
		conv.Name,
		conv.Description,
		conv.CreatedBy,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	participantQuery := `
		INSERT INTO conversation_participants (
			conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, p := range participants {
		_, err = tx.Exec(ctx, participantQuery,
			p.ConversationID,
			p.UserID,
			p.Role,
			p.JoinedAt,
			p.LeftAt,
			p.LastReadAt,
			p.IsMuted,
		)
		if err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID
func (s *ConversationStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, kind, name, description, created_by, created_at, updated_at
		FROM conversations
		WHERE conversation_id = $1
	`

	conv := &domain.Conversation{}
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&conv.ConversationID,
		&conv.Kind,
		&conv.Name,
		&conv.Description,
		&conv.CreatedBy,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// GetParticipants retrieves membership rows for a conversation
func (s *ConversationStore) GetParticipants(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*domain.ConversationParticipant, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		FROM conversation_participants
		WHERE conversation_id = $1
	`
	if activeOnly {
		query += ` AND left_at IS NULL`
	}
	query += ` ORDER BY joined_at ASC`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.ConversationParticipant
	for rows.Next() {
		p := &domain.ConversationParticipant{}
		if err := rows.Scan(
			&p.ConversationID,
			&p.UserID,
			&p.Role,
			&p.JoinedAt,
			&p.LeftAt,
			&p.LastReadAt,
			&p.IsMuted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// GetParticipant retrieves one membership row regardless of active state
func (s *ConversationStore) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`

	p := &domain.ConversationParticipant{}
	err := s.pool.QueryRow(ctx, query, conversationID, userID).Scan(
		&p.ConversationID,
		&p.UserID,
		&p.Role,
		&p.JoinedAt,
		&p.LeftAt,
		&p.LastReadAt,
		&p.IsMuted,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

// ListByParticipant retrieves conversations where the user is an active
// participant, most recent activity first
func (s *ConversationStore) ListByParticipant(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) ([]*domain.Conversation, error) {
	query := `
		SELECT c.conversation_id, c.kind, c.name, c.description, c.created_by, c.created_at, c.updated_at
		FROM conversations c
		INNER JOIN conversation_participants cp ON c.conversation_id = cp.conversation_id
		WHERE cp.user_id = $1 AND cp.left_at IS NULL
		  AND ($2 = '' OR c.kind = $2)
		  AND ($3 = '' OR c.name ILIKE '%' || $3 || '%' OR c.description ILIKE '%' || $3 || '%')
		ORDER BY c.updated_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.pool.Query(ctx, query, userID, filter.Kind, filter.Search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv := &domain.Conversation{}
		if err := rows.Scan(
			&conv.ConversationID,
			&conv.Kind,
			&conv.Name,
			&conv.Description,
			&conv.CreatedBy,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// CountByParticipant returns the total matching ListByParticipant
func (s *ConversationStore) CountByParticipant(ctx context.Context, userID uuid.UUID, filter store.ConversationFilter) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM conversations c
		INNER JOIN conversation_participants cp ON c.conversation_id = cp.conversation_id
		WHERE cp.user_id = $1 AND cp.left_at IS NULL
		  AND ($2 = '' OR c.kind = $2)
		  AND ($3 = '' OR c.name ILIKE '%' || $3 || '%' OR c.description ILIKE '%' || $3 || '%')
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query, userID, filter.Kind, filter.Search).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	return count, nil
}

// UpsertParticipant inserts a membership row or reactivates an existing one.
// The ON CONFLICT clause makes this a single atomic statement, so concurrent
// first sends for the same (conversation, user) all resolve to one row.
func (s *ConversationStore) UpsertParticipant(ctx context.Context, conversationID, userID uuid.UUID, role string) (*domain.ConversationParticipant, error) {
	query := `
		INSERT INTO conversation_participants (
			conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
		) VALUES ($1, $2, $3, $4, NULL, NULL, FALSE)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET left_at = NULL
		RETURNING conversation_id, user_id, role, joined_at, left_at, last_read_at, is_muted
	`

	p := &domain.ConversationParticipant{}
	err := s.pool.QueryRow(ctx, query, conversationID, userID, role, time.Now()).Scan(
		&p.ConversationID,
		&p.UserID,
		&p.Role,
		&p.JoinedAt,
		&p.LeftAt,
		&p.LastReadAt,
		&p.IsMuted,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}

	return p, nil
}

// SetParticipantLeft stamps left_at for one participant
func (s *ConversationStore) SetParticipantLeft(ctx context.Context, conversationID, userID uuid.UUID, leftAt time.Time) error {
	query := `
		UPDATE conversation_participants
		SET left_at = $3
		WHERE conversation_id = $1 AND user_id = $2
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, userID, leftAt)
	if err != nil {
		return fmt.Errorf("failed to set participant left: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// SetParticipantRole changes a participant's role
func (s *ConversationStore) SetParticipantRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	query := `
		UPDATE conversation_participants
		SET role = $3
		WHERE conversation_id = $1 AND user_id = $2
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to set participant role: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// SetParticipantMuted flips the participant's mute flag
func (s *ConversationStore) SetParticipantMuted(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error {
	query := `
		UPDATE conversation_participants
		SET is_muted = $3
		WHERE conversation_id = $1 AND user_id = $2
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, userID, muted)
	if err != nil {
		return fmt.Errorf("failed to set participant muted: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// AdvanceLastRead moves the coarse read position forward. GREATEST keeps the
// position monotonic under out-of-order calls.
func (s *ConversationStore) AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE conversation_participants
		SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $3)
		WHERE conversation_id = $1 AND user_id = $2
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, userID, readAt)
	if err != nil {
		return fmt.Errorf("failed to advance last read: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// TouchConversation bumps updated_at
func (s *ConversationStore) TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET updated_at = $2 WHERE conversation_id = $1`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, at)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}

// UpdateConversationMeta updates name/description, keeping nil fields
func (s *ConversationStore) UpdateConversationMeta(ctx context.Context, conversationID uuid.UUID, name, description *string) error {
	query := `
		UPDATE conversations
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE conversation_id = $1
	`

	cmdTag, err := s.pool.Exec(ctx, query, conversationID, name, description)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return nil
}
