package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/domain"
)

// stubService returns canned results so fan-out behavior can be exercised
// without a store.
type stubService struct {
	msg *domain.MessageResponse
}

func (s *stubService) SendMessage(_ context.Context, _ uuid.UUID, _ *domain.MessageCreate) (*domain.MessageResponse, error) {
	return s.msg, nil
}

func (s *stubService) MarkMessagesAsRead(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubService) MarkMessageAsRead(_ context.Context, _, _ uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *stubService) AddReaction(_ context.Context, _, _ uuid.UUID, _ string) (*domain.MessageReaction, uuid.UUID, error) {
	return nil, uuid.Nil, nil
}

func (s *stubService) RemoveReaction(_ context.Context, _, _ uuid.UUID, _ string) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *stubService) ActiveConversationIDs(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubService) IsActiveParticipant(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return true, nil
}

func drainEvents(t *testing.T, c *Client) []string {
	t.Helper()
	var types []string
	for {
		select {
		case data := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

func TestHandleSendMessage_NoDuplicateForDirectReceiver(t *testing.T) {
	hub := NewHub()
	senderID, receiverID := uuid.New(), uuid.New()
	conversationID := uuid.New()

	msg := &domain.MessageResponse{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     &receiverID,
		Content:        "hello",
	}
	g := NewGateway(hub, &stubService{msg: msg}, nil, nil, nil)

	sender := testClient(senderID, 8)
	sender.gateway = g
	receiver := testClient(receiverID, 8)
	receiver.gateway = g

	// The receiver is in both the conversation room and their user room
	hub.Register(receiver)
	hub.Join(ConversationRoom(conversationID), receiver)
	hub.Join(UserRoom(receiverID), receiver)

	g.handleSendMessage(context.Background(), sender, &domain.MessageCreate{
		ConversationID: &conversationID,
		Content:        "hello",
	})

	got := drainEvents(t, receiver)
	assert.Equal(t, []string{EventNewMessage}, got, "one frame, not one per room")

	assert.Equal(t, []string{EventMessageSent}, drainEvents(t, sender), "sender gets the ack only")
}

func TestHandleSendMessage_ReachesReceiverOutsideConversationRoom(t *testing.T) {
	hub := NewHub()
	senderID, receiverID := uuid.New(), uuid.New()
	conversationID := uuid.New()

	msg := &domain.MessageResponse{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     &receiverID,
		Content:        "hello",
	}
	g := NewGateway(hub, &stubService{msg: msg}, nil, nil, nil)

	sender := testClient(senderID, 8)
	sender.gateway = g
	receiver := testClient(receiverID, 8)
	receiver.gateway = g

	// Online, but not yet joined to the (possibly brand-new) conversation
	hub.Register(receiver)
	hub.Join(UserRoom(receiverID), receiver)

	g.handleSendMessage(context.Background(), sender, &domain.MessageCreate{
		ReceiverID: &receiverID,
		Content:    "hello",
	})

	assert.Equal(t, []string{EventNewMessage}, drainEvents(t, receiver))
}

func TestHubUserInRoom(t *testing.T) {
	hub := NewHub()
	room := ConversationRoom(uuid.New())
	userID := uuid.New()

	assert.False(t, hub.UserInRoom(room, userID))

	client := testClient(userID, 1)
	hub.Join(room, client)
	assert.True(t, hub.UserInRoom(room, userID))
	assert.False(t, hub.UserInRoom(room, uuid.New()))

	hub.Leave(room, client)
	assert.False(t, hub.UserInRoom(room, userID))
}
