package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/identity"
	"learnhub-backend/internal/store"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/pagination"
)

// Service enforces the messaging business rules on top of the store:
// direct-conversation deduplication, participant lifecycle, membership
// self-healing, sender-only mutation, read bookkeeping.
type Service struct {
	store    store.Store
	identity identity.Resolver
	metrics  *metrics.Metrics
}

// NewService creates a new messaging service. metrics may be nil in tests.
func NewService(st store.Store, resolver identity.Resolver, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		identity: resolver,
		metrics:  m,
	}
}

// CreateConversation creates a conversation, deduplicating direct pairs:
// a second direct conversation between the same two users returns the
// existing one unchanged.
func (s *Service) CreateConversation(ctx context.Context, creatorID uuid.UUID, input *domain.ConversationCreate) (*domain.ConversationResponse, error) {
	if len(input.ParticipantIDs) < 2 {
		return nil, apperrors.ValidationError("a conversation requires at least 2 participants")
	}

	switch input.Kind {
	case domain.ConversationKindDirect:
		return s.createDirectConversation(ctx, creatorID, input)
	case domain.ConversationKindGroup:
		return s.createGroupConversation(ctx, creatorID, input)
	default:
		return nil, apperrors.ValidationError("kind must be direct or group")
	}
}

func (s *Service) createDirectConversation(ctx context.Context, creatorID uuid.UUID, input *domain.ConversationCreate) (*domain.ConversationResponse, error) {
	ids := dedupeIDs(input.ParticipantIDs)
	if len(ids) != 2 {
		return nil, apperrors.ValidationError("a direct conversation requires exactly 2 distinct participants")
	}

	if existing, err := s.findDirectConversation(ctx, ids[0], ids[1]); err != nil {
		return nil, err
	} else if existing != nil {
		return s.hydrateConversation(ctx, existing, creatorID)
	}

	now := time.Now()
	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		Kind:           domain.ConversationKindDirect,
		CreatedBy:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	participants := make([]*domain.ConversationParticipant, 0, 2)
	for _, id := range ids {
		role := domain.ParticipantRoleMember
		if id == creatorID {
			role = domain.ParticipantRoleAdmin
		}
		participants = append(participants, &domain.ConversationParticipant{
			ConversationID: conv.ConversationID,
			UserID:         id,
			Role:           role,
			JoinedAt:       now,
		})
	}

	if err := s.store.Conversations().CreateConversation(ctx, conv, participants); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordConversationCreated(domain.ConversationKindDirect)
	}

	return s.hydrateConversation(ctx, conv, creatorID)
}

func (s *Service) createGroupConversation(ctx context.Context, creatorID uuid.UUID, input *domain.ConversationCreate) (*domain.ConversationResponse, error) {
	if input.Name == nil || *input.Name == "" {
		return nil, apperrors.ValidationError("a group conversation requires a name")
	}

	ids := dedupeIDs(append([]uuid.UUID{creatorID}, input.ParticipantIDs...))
	if len(ids) < 2 {
		return nil, apperrors.ValidationError("a group conversation requires at least 2 participants")
	}

	now := time.Now()
	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		Kind:           domain.ConversationKindGroup,
		Name:           input.Name,
		Description:    input.Description,
		CreatedBy:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	participants := make([]*domain.ConversationParticipant, 0, len(ids))
	for _, id := range ids {
		role := domain.ParticipantRoleMember
		if id == creatorID {
			role = domain.ParticipantRoleAdmin
		}
		participants = append(participants, &domain.ConversationParticipant{
			ConversationID: conv.ConversationID,
			UserID:         id,
			Role:           role,
			JoinedAt:       now,
		})
	}

	if err := s.store.Conversations().CreateConversation(ctx, conv, participants); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordConversationCreated(domain.ConversationKindGroup)
	}

	return s.hydrateConversation(ctx, conv, creatorID)
}

// findDirectConversation returns the direct conversation whose active
// participant set is exactly {a, b}, or nil.
func (s *Service) findDirectConversation(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	candidates, err := s.store.Conversations().ListByParticipant(ctx, a, store.ConversationFilter{
		Kind:  domain.ConversationKindDirect,
		Limit: directLookupLimit,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	for _, conv := range candidates {
		participants, err := s.store.Conversations().GetParticipants(ctx, conv.ConversationID, true)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if len(participants) != 2 {
			continue
		}
		got := map[uuid.UUID]bool{
			participants[0].UserID: true,
			participants[1].UserID: true,
		}
		if got[a] && got[b] {
			return conv, nil
		}
	}

	return nil, nil
}

// directLookupLimit bounds the candidate scan during direct-pair dedupe
const directLookupLimit = 500

// ListConversationsInput contains list query parameters
type ListConversationsInput struct {
	Kind   string
	Search string
	Page   int
	Limit  int
}

// ListConversations returns the caller's active conversations, newest
// activity first, each with participants, last message, and unread count.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, input *ListConversationsInput) (*pagination.Response, error) {
	params := pagination.Normalize(input.Page, input.Limit)

	filter := store.ConversationFilter{
		Kind:   input.Kind,
		Search: input.Search,
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	conversations, err := s.store.Conversations().ListByParticipant(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	total, err := s.store.Conversations().CountByParticipant(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	responses := make([]*domain.ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		resp, err := s.hydrateConversation(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	return pagination.NewResponse(params, total, responses), nil
}

// GetConversation returns one hydrated conversation. The caller must be an
// active participant; metadata reads do not self-heal membership.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationResponse, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := s.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	return s.hydrateConversation(ctx, conv, userID)
}

// DeleteConversation soft-deletes a conversation by stamping left_at on every
// active participant. Any active participant may delete a direct conversation;
// groups require the creator or an admin.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	caller, err := s.requireActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	if conv.Kind == domain.ConversationKindGroup {
		if conv.CreatedBy != userID && caller.Role != domain.ParticipantRoleAdmin {
			return apperrors.ForbiddenError("only the creator or an admin can delete a group conversation")
		}
	}

	participants, err := s.store.Conversations().GetParticipants(ctx, conversationID, true)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	now := time.Now()
	for _, p := range participants {
		if err := s.store.Conversations().SetParticipantLeft(ctx, conversationID, p.UserID, now); err != nil {
			return apperrors.DatabaseError(err)
		}
	}

	return s.touch(ctx, conversationID, now)
}

// LeaveConversation stamps left_at for the caller only
func (s *Service) LeaveConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.getConversation(ctx, conversationID); err != nil {
		return err
	}

	if _, err := s.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	now := time.Now()
	if err := s.store.Conversations().SetParticipantLeft(ctx, conversationID, userID, now); err != nil {
		return apperrors.DatabaseError(err)
	}

	return s.touch(ctx, conversationID, now)
}

// AddParticipants adds members to a group conversation. Direct conversations
// keep exactly two membership rows and reject additions.
func (s *Service) AddParticipants(ctx context.Context, conversationID, callerID uuid.UUID, userIDs []uuid.UUID) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	if conv.Kind != domain.ConversationKindGroup {
		return apperrors.ValidationError("participants can only be added to group conversations")
	}

	caller, err := s.requireActiveParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if caller.Role != domain.ParticipantRoleAdmin {
		return apperrors.ForbiddenError("only an admin can add participants")
	}

	for _, id := range dedupeIDs(userIDs) {
		if _, err := s.store.Conversations().UpsertParticipant(ctx, conversationID, id, domain.ParticipantRoleMember); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to add participant", err)
		}
	}

	return s.touch(ctx, conversationID, time.Now())
}

// UpdateParticipantRole changes one participant's role; admin only
func (s *Service) UpdateParticipantRole(ctx context.Context, conversationID, callerID, targetID uuid.UUID, role string) error {
	if role != domain.ParticipantRoleMember && role != domain.ParticipantRoleAdmin {
		return apperrors.ValidationError("role must be member or admin")
	}

	if _, err := s.getConversation(ctx, conversationID); err != nil {
		return err
	}

	caller, err := s.requireActiveParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if caller.Role != domain.ParticipantRoleAdmin {
		return apperrors.ForbiddenError("only an admin can change roles")
	}

	if err := s.store.Conversations().SetParticipantRole(ctx, conversationID, targetID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFoundError("participant")
		}
		return apperrors.DatabaseError(err)
	}

	return nil
}

// MuteConversation flips the caller's mute flag
func (s *Service) MuteConversation(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error {
	if _, err := s.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	if err := s.store.Conversations().SetParticipantMuted(ctx, conversationID, userID, muted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotParticipantError()
		}
		return apperrors.DatabaseError(err)
	}

	return nil
}

// UpdateConversationMeta updates name/description; admin-role participants only
func (s *Service) UpdateConversationMeta(ctx context.Context, conversationID, callerID uuid.UUID, update *domain.ConversationUpdate) (*domain.ConversationResponse, error) {
	if _, err := s.getConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	caller, err := s.requireActiveParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.ParticipantRoleAdmin {
		return nil, apperrors.ForbiddenError("only an admin can update conversation details")
	}

	if update.Name != nil && *update.Name == "" {
		return nil, apperrors.ValidationError("name cannot be empty")
	}

	if err := s.store.Conversations().UpdateConversationMeta(ctx, conversationID, update.Name, update.Description); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return s.hydrateConversation(ctx, conv, callerID)
}

// ActiveConversationIDs returns ids of every conversation the user actively
// participates in. The gateway uses it to join rooms at connect time.
func (s *Service) ActiveConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	conversations, err := s.store.Conversations().ListByParticipant(ctx, userID, store.ConversationFilter{
		Limit: directLookupLimit,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	ids := make([]uuid.UUID, len(conversations))
	for i, conv := range conversations {
		ids[i] = conv.ConversationID
	}
	return ids, nil
}

// IsActiveParticipant reports whether the user currently belongs to the
// conversation. The gateway checks it before joining a socket to a room.
func (s *Service) IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	p, err := s.store.Conversations().GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, apperrors.DatabaseError(err)
	}
	return p.IsActive(), nil
}

// getConversation maps store lookups to the caller-facing error taxonomy
func (s *Service) getConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return conv, nil
}

// requireActiveParticipant returns the caller's membership row or a
// NOT_A_PARTICIPANT error
func (s *Service) requireActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	p, err := s.store.Conversations().GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotParticipantError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !p.IsActive() {
		return nil, apperrors.NotParticipantError()
	}
	return p, nil
}

func (s *Service) touch(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	if err := s.store.Conversations().TouchConversation(ctx, conversationID, at); err != nil {
		logger.Warn("failed to bump conversation activity",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
