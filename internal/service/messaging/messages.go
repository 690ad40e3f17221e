package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/pagination"
	"learnhub-backend/pkg/sanitize"
)

// SendMessage persists a message. Exactly one of ConversationID/ReceiverID
// must resolve to a target; a bare receiver id creates (or reuses) the direct
// conversation first. Senders without an active membership row are healed
// through the atomic participant upsert, so concurrent first sends never
// duplicate membership.
func (s *Service) SendMessage(ctx context.Context, senderID uuid.UUID, input *domain.MessageCreate) (*domain.MessageResponse, error) {
	if strings.TrimSpace(input.Content) == "" && len(input.Attachments) == 0 {
		return nil, apperrors.ValidationError("message content is required")
	}

	conversationID, err := s.resolveTarget(ctx, senderID, input)
	if err != nil {
		return nil, err
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// A reply may only reference a message in the same conversation
	if input.ReplyToID != nil {
		target, err := s.store.Messages().GetMessage(ctx, *input.ReplyToID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.ValidationError("reply target does not exist")
			}
			return nil, apperrors.DatabaseError(err)
		}
		if target.ConversationID != conversationID {
			return nil, apperrors.ValidationError("reply target is not in this conversation")
		}
	}

	if _, err := s.store.Conversations().UpsertParticipant(ctx, conversationID, senderID, domain.ParticipantRoleMember); err != nil {
		if s.metrics != nil {
			s.metrics.RecordUnauthorizedSend()
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to add participant", err)
	}

	receiverID := input.ReceiverID
	if receiverID == nil && conv.Kind == domain.ConversationKindDirect {
		receiverID, err = s.otherParticipant(ctx, conversationID, senderID)
		if err != nil {
			return nil, err
		}
	}

	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	now := time.Now()
	msg := &domain.Message{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        input.Content,
		Type:           msgType,
		Attachments:    input.Attachments,
		ReplyToID:      input.ReplyToID,
		Metadata:       input.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Messages().CreateMessage(ctx, msg); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if err := s.touch(ctx, conversationID, now); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMessageSent(msgType)
	}

	return s.hydrateMessage(ctx, msg, true)
}

// resolveTarget picks the conversation to write into, creating the direct
// conversation when only a receiver id is given.
func (s *Service) resolveTarget(ctx context.Context, senderID uuid.UUID, input *domain.MessageCreate) (uuid.UUID, error) {
	if input.ConversationID != nil {
		return *input.ConversationID, nil
	}

	if input.ReceiverID == nil {
		return uuid.Nil, apperrors.ValidationError("conversation_id or receiver_id is required")
	}
	if *input.ReceiverID == senderID {
		return uuid.Nil, apperrors.ValidationError("cannot send a direct message to yourself")
	}

	conv, err := s.CreateConversation(ctx, senderID, &domain.ConversationCreate{
		Kind:           domain.ConversationKindDirect,
		ParticipantIDs: []uuid.UUID{senderID, *input.ReceiverID},
	})
	if err != nil {
		return uuid.Nil, err
	}

	return conv.ConversationID, nil
}

// otherParticipant returns the sole other active participant of a direct
// conversation, or nil when there isn't exactly one.
func (s *Service) otherParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*uuid.UUID, error) {
	participants, err := s.store.Conversations().GetParticipants(ctx, conversationID, true)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	var other *uuid.UUID
	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		if other != nil {
			return nil, nil
		}
		id := p.UserID
		other = &id
	}
	return other, nil
}

// GetMessagesInput contains history query parameters
type GetMessagesInput struct {
	Before *time.Time
	After  *time.Time
	Page   int
	Limit  int
}

// GetMessages returns conversation history in chronological order. Reading
// triggers the same membership self-healing as sending: viewing implicitly
// (re)establishes membership. Tombstoned messages keep their position with
// the placeholder content.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID uuid.UUID, input *GetMessagesInput) (*pagination.Response, error) {
	if _, err := s.getConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	if _, err := s.store.Conversations().UpsertParticipant(ctx, conversationID, userID, domain.ParticipantRoleMember); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDatabase, "failed to add participant", err)
	}

	params := pagination.Normalize(input.Page, input.Limit)

	messages, err := s.store.Messages().ListMessages(ctx, conversationID, store.MessageFilter{
		Before: input.Before,
		After:  input.After,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	total, err := s.store.Messages().CountMessages(ctx, conversationID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	// Fetched newest-first for pagination, delivered oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	responses, err := s.hydrateMessages(ctx, messages)
	if err != nil {
		return nil, err
	}

	return pagination.NewResponse(params, total, responses), nil
}

// UpdateMessage edits a message's content; sender only. Tombstoned messages
// cannot be edited.
func (s *Service) UpdateMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*domain.MessageResponse, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.ValidationError("message content is required")
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperrors.NotMessageSenderError()
	}

	updated, err := s.store.Messages().UpdateMessageContent(ctx, messageID, content, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row exists but is tombstoned
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageEdited()
	}

	return s.hydrateMessage(ctx, updated, true)
}

// DeleteMessage overwrites the content with the tombstone; sender only.
// The original content is unrecoverable.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) (*domain.MessageResponse, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperrors.NotMessageSenderError()
	}

	deleted, err := s.store.Messages().SoftDeleteMessage(ctx, messageID, domain.DeletedMessageContent, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageDeleted()
	}

	return s.hydrateMessage(ctx, deleted, false)
}

// MarkMessagesAsRead bulk-marks unread messages addressed to the user and
// advances the participant's coarse read position. Both are maintained so
// unread counts and receipt display stay consistent.
func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	if _, err := s.requireActiveParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	now := time.Now()
	count, err := s.store.Messages().MarkConversationRead(ctx, conversationID, userID, now)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	if err := s.store.Conversations().AdvanceLastRead(ctx, conversationID, userID, now); err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordReadReceipt("conversation")
	}

	return count, nil
}

// MarkMessageAsRead records a per-message receipt and returns the message's
// conversation id for fan-out. The coarse is_read flag is flipped only when
// the caller is the message's receiver; group messages have no single
// receiver, so their coarse flag is never set this way and the receipt rows
// stay authoritative.
func (s *Service) MarkMessageAsRead(ctx context.Context, messageID, userID uuid.UUID) (uuid.UUID, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := s.requireActiveParticipant(ctx, msg.ConversationID, userID); err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	if err := s.store.Messages().UpsertRead(ctx, &domain.MessageRead{
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    now,
	}); err != nil {
		return uuid.Nil, apperrors.DatabaseError(err)
	}

	if msg.ReceiverID != nil && *msg.ReceiverID == userID && !msg.IsRead {
		if err := s.store.Messages().SetMessageRead(ctx, messageID, now); err != nil {
			return uuid.Nil, apperrors.DatabaseError(err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordReadReceipt("message")
	}

	return msg.ConversationID, nil
}

// AddReaction records an emoji reaction; re-adding the same triple is
// idempotent. The message's conversation id is returned for fan-out.
func (s *Service) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, uuid.UUID, error) {
	if emoji == "" {
		return nil, uuid.Nil, apperrors.ValidationError("emoji is required")
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if _, err := s.requireActiveParticipant(ctx, msg.ConversationID, userID); err != nil {
		return nil, uuid.Nil, err
	}

	reaction := &domain.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}

	if err := s.store.Messages().UpsertReaction(ctx, reaction); err != nil {
		return nil, uuid.Nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordReaction("add")
	}

	return reaction, msg.ConversationID, nil
}

// RemoveReaction removes a reaction; a missing row is a silent no-op.
// The message's conversation id is returned for fan-out.
func (s *Service) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (uuid.UUID, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := s.requireActiveParticipant(ctx, msg.ConversationID, userID); err != nil {
		return uuid.Nil, err
	}

	if err := s.store.Messages().DeleteReaction(ctx, messageID, userID, emoji); err != nil {
		return uuid.Nil, apperrors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordReaction("remove")
	}

	return msg.ConversationID, nil
}

// SearchMessagesInput contains search parameters
type SearchMessagesInput struct {
	ConversationID *uuid.UUID
	Query          string
	Limit          int
	Offset         int
}

// SearchMessages matches non-deleted content case-insensitively, scoped to
// one conversation (membership-checked) or to every conversation the caller
// actively participates in.
func (s *Service) SearchMessages(ctx context.Context, userID uuid.UUID, input *SearchMessagesInput) ([]*domain.MessageResponse, error) {
	query := sanitize.SearchQuery(input.Query)
	if query == "" {
		return nil, apperrors.ValidationError("search query is required")
	}

	if input.ConversationID != nil {
		if _, err := s.requireActiveParticipant(ctx, *input.ConversationID, userID); err != nil {
			return nil, err
		}
	}

	limit := input.Limit
	if limit <= 0 || limit > pagination.MaxLimit {
		limit = pagination.DefaultLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	messages, err := s.store.Messages().SearchMessages(ctx, userID, input.ConversationID, query, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return s.hydrateMessages(ctx, messages)
}

// getMessage maps store lookups to the caller-facing error taxonomy
func (s *Service) getMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.store.Messages().GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return msg, nil
}
