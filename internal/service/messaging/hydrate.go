package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/store"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
)

// hydrateConversation assembles the full client view: participants with
// resolved identity, last message, and the viewer's unread count.
func (s *Service) hydrateConversation(ctx context.Context, conv *domain.Conversation, forUserID uuid.UUID) (*domain.ConversationResponse, error) {
	participants, err := s.store.Conversations().GetParticipants(ctx, conv.ConversationID, true)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	ids := make([]uuid.UUID, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	users := s.resolveUsers(ctx, ids)

	resp := &domain.ConversationResponse{
		ConversationID: conv.ConversationID,
		Kind:           conv.Kind,
		Name:           conv.Name,
		Description:    conv.Description,
		CreatedBy:      conv.CreatedBy,
		Participants:   make([]domain.ParticipantResponse, 0, len(participants)),
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}

	var viewer *domain.ConversationParticipant
	for _, p := range participants {
		identity := users[p.UserID]
		pr := domain.ParticipantResponse{
			UserID:     p.UserID,
			Username:   identity.Username,
			Email:      identity.Email,
			FirstName:  identity.FirstName,
			LastName:   identity.LastName,
			AvatarURL:  identity.AvatarURL,
			Role:       p.Role,
			JoinedAt:   p.JoinedAt,
			LastReadAt: p.LastReadAt,
			IsMuted:    p.IsMuted,
		}
		resp.Participants = append(resp.Participants, pr)
		if p.UserID == forUserID {
			viewer = p
		}
	}

	last, err := s.store.Messages().ListMessages(ctx, conv.ConversationID, store.MessageFilter{Limit: 1})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if len(last) > 0 {
		lastResp, err := s.hydrateMessage(ctx, last[0], false)
		if err != nil {
			return nil, err
		}
		resp.LastMessage = lastResp
	}

	if viewer != nil {
		unread, err := s.store.Messages().CountUnread(ctx, conv.ConversationID, forUserID, viewer.LastReadAt)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		resp.UnreadCount = unread
	}

	return resp, nil
}

// hydrateMessage resolves sender/receiver identity, reactions, and the reply
// target (one level deep).
func (s *Service) hydrateMessage(ctx context.Context, msg *domain.Message, withReply bool) (*domain.MessageResponse, error) {
	resp := messageResponse(msg)

	ids := []uuid.UUID{msg.SenderID}
	if msg.ReceiverID != nil {
		ids = append(ids, *msg.ReceiverID)
	}
	users := s.resolveUsers(ctx, ids)

	resp.Sender = users[msg.SenderID]
	if msg.ReceiverID != nil {
		resp.Receiver = users[*msg.ReceiverID]
	}

	reactions, err := s.store.Messages().ListReactions(ctx, msg.MessageID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	for _, r := range reactions {
		resp.Reactions = append(resp.Reactions, *r)
	}

	if withReply && msg.ReplyToID != nil {
		replyTo, err := s.store.Messages().GetMessage(ctx, *msg.ReplyToID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.DatabaseError(err)
			}
			// Dangling reply reference, deliver without the target
		} else {
			replyResp := messageResponse(replyTo)
			replyUsers := s.resolveUsers(ctx, []uuid.UUID{replyTo.SenderID})
			replyResp.Sender = replyUsers[replyTo.SenderID]
			resp.ReplyTo = replyResp
		}
	}

	return resp, nil
}

// hydrateMessages resolves sender/receiver identities in one batch
func (s *Service) hydrateMessages(ctx context.Context, messages []*domain.Message) ([]*domain.MessageResponse, error) {
	idSet := make(map[uuid.UUID]bool)
	for _, msg := range messages {
		idSet[msg.SenderID] = true
		if msg.ReceiverID != nil {
			idSet[*msg.ReceiverID] = true
		}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	users := s.resolveUsers(ctx, ids)

	responses := make([]*domain.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp := messageResponse(msg)
		resp.Sender = users[msg.SenderID]
		if msg.ReceiverID != nil {
			resp.Receiver = users[*msg.ReceiverID]
		}

		reactions, err := s.store.Messages().ListReactions(ctx, msg.MessageID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		for _, r := range reactions {
			resp.Reactions = append(resp.Reactions, *r)
		}

		responses = append(responses, resp)
	}

	return responses, nil
}

// resolveUsers looks up identities, substituting the "Unknown" fallback for
// every id the directory cannot resolve. Directory failures degrade the
// payload, never the operation.
func (s *Service) resolveUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]*domain.UserResponse {
	result := make(map[uuid.UUID]*domain.UserResponse, len(ids))

	resolved, err := s.identity.ResolveMany(ctx, ids)
	if err != nil {
		logger.Warn("identity resolution failed", zap.Error(err))
		resolved = nil
	}

	for _, id := range ids {
		if user, ok := resolved[id]; ok {
			result[id] = user.ToResponse()
		} else {
			result[id] = domain.UnknownUser(id)
		}
	}

	return result
}

func messageResponse(msg *domain.Message) *domain.MessageResponse {
	return &domain.MessageResponse{
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		Type:           msg.Type,
		Attachments:    msg.Attachments,
		ReplyToID:      msg.ReplyToID,
		Metadata:       msg.Metadata,
		IsRead:         msg.IsRead,
		ReadAt:         msg.ReadAt,
		IsEdited:       msg.IsEdited,
		EditedAt:       msg.EditedAt,
		IsDeleted:      msg.IsDeleted,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}
