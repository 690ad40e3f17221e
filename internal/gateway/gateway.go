package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

// MessagingService is the service surface the gateway drives
type MessagingService interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, input *domain.MessageCreate) (*domain.MessageResponse, error)
	MarkMessagesAsRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
	MarkMessageAsRead(ctx context.Context, messageID, userID uuid.UUID) (uuid.UUID, error)
	AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, uuid.UUID, error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (uuid.UUID, error)
	ActiveConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	IsActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin restriction is deployment configuration
	},
}

// Gateway bridges websocket events to the messaging service and fans results
// back out to room members.
type Gateway struct {
	hub      *Hub
	service  MessagingService
	jwt      *jwt.JWTManager
	presence *Presence
	metrics  *metrics.Metrics
}

// NewGateway creates a new Gateway. metrics may be nil in tests.
func NewGateway(hub *Hub, service MessagingService, jwtManager *jwt.JWTManager, presence *Presence, m *metrics.Metrics) *Gateway {
	return &Gateway{
		hub:      hub,
		service:  service,
		jwt:      jwtManager,
		presence: presence,
		metrics:  m,
	}
}

// ServeWS upgrades the HTTP request to a websocket connection.
// Authentication is attempted once from the handshake token; failure degrades
// the connection to anonymous instead of closing it, and identity-requiring
// events are rejected at the point of use.
func (g *Gateway) ServeWS(c *gin.Context) {
	userID := g.authenticate(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(g, conn, userID)
	g.hub.Register(client)

	if g.metrics != nil {
		g.metrics.IncrementWebSocketConnections()
	}

	if client.authenticated() {
		g.onConnect(client)
	}

	go client.writePump()
	go client.readPump()
}

// authenticate extracts the handshake identity from the bearer token in the
// query string or Authorization header. uuid.Nil means anonymous.
func (g *Gateway) authenticate(c *gin.Context) uuid.UUID {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}
	}
	if token == "" {
		return uuid.Nil
	}

	claims, err := g.jwt.ValidateToken(token)
	if err != nil {
		logger.Debug("websocket handshake auth failed", zap.Error(err))
		return uuid.Nil
	}
	return claims.UserID
}

// onConnect joins the personal room and every active conversation room, and
// marks the user online.
func (g *Gateway) onConnect(client *Client) {
	ctx := context.Background()

	g.hub.Join(UserRoom(client.userID), client)

	ids, err := g.service.ActiveConversationIDs(ctx, client.userID)
	if err != nil {
		logger.Warn("failed to load conversations at connect",
			zap.String("user_id", client.userID.String()),
			zap.Error(err),
		)
	} else {
		for _, id := range ids {
			g.hub.Join(ConversationRoom(id), client)
		}
	}

	if err := g.presence.SetOnline(ctx, client.userID); err != nil {
		logger.Warn("failed to mark user online", zap.Error(err))
	}
}

// disconnect removes the connection from the hub; the last connection for a
// user flips presence offline. Disconnection is not "leaving": no
// persistence-layer state changes here.
func (g *Gateway) disconnect(client *Client) {
	last := g.hub.Unregister(client)
	close(client.send)

	if g.metrics != nil {
		g.metrics.DecrementWebSocketConnections()
	}

	if last {
		if err := g.presence.SetOffline(context.Background(), client.userID); err != nil {
			logger.Warn("failed to mark user offline", zap.Error(err))
		}
	}
}

// handleEvent dispatches one client event. Errors reach only the originating
// connection, never the room.
func (g *Gateway) handleEvent(client *Client, env *Envelope) {
	ctx := context.Background()

	switch env.Type {
	case EventLeaveConversation:
		var p conversationPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.hub.Leave(ConversationRoom(p.ConversationID), client)
		return
	}

	// Everything below requires an identity
	if !client.authenticated() {
		client.enqueue(encodeEvent(EventError, errorEvent{
			Code:    string(apperrors.ErrCodeUnauthorized),
			Message: "authentication required for this action",
		}))
		return
	}

	switch env.Type {
	case EventJoinUser:
		g.hub.Join(UserRoom(client.userID), client)

	case EventJoinConversation:
		var p conversationPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.handleJoinConversation(ctx, client, p.ConversationID)

	case EventSendMessage:
		var input domain.MessageCreate
		if !g.decode(client, env.Payload, &input) {
			return
		}
		g.handleSendMessage(ctx, client, &input)

	case EventTypingStart, EventTypingStop:
		var p conversationPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.hub.Broadcast(ConversationRoom(p.ConversationID), encodeEvent(EventUserTyping, typingEvent{
			ConversationID: p.ConversationID,
			UserID:         client.userID,
			Typing:         env.Type == EventTypingStart,
		}), client)

	case EventMarkRead:
		var p conversationPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.handleMarkRead(ctx, client, p.ConversationID)

	case EventMarkMessageRead:
		var p messagePayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.handleMarkMessageRead(ctx, client, p.MessageID)

	case EventAddReaction:
		var p reactionPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.handleAddReaction(ctx, client, p.MessageID, p.Emoji)

	case EventRemoveReaction:
		var p reactionPayload
		if !g.decode(client, env.Payload, &p) {
			return
		}
		g.handleRemoveReaction(ctx, client, p.MessageID, p.Emoji)

	default:
		client.enqueue(encodeEvent(EventError, errorEvent{
			Code:    "UNKNOWN_EVENT",
			Message: "unknown event type: " + env.Type,
		}))
	}
}

// handleJoinConversation joins the room only after a membership check; an
// unauthorized attempt yields an error event and never joins.
func (g *Gateway) handleJoinConversation(ctx context.Context, client *Client, conversationID uuid.UUID) {
	ok, err := g.service.IsActiveParticipant(ctx, conversationID, client.userID)
	if err != nil {
		g.sendError(client, err)
		return
	}
	if !ok {
		client.enqueue(encodeEvent(EventError, errorEvent{
			Code:    string(apperrors.ErrCodeNotParticipant),
			Message: "you are not a participant in this conversation",
		}))
		return
	}
	g.hub.Join(ConversationRoom(conversationID), client)
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *Client, input *domain.MessageCreate) {
	msg, err := g.service.SendMessage(ctx, client.userID, input)
	if err != nil {
		g.sendError(client, err)
		return
	}

	// Sending may have created the conversation or healed membership, so
	// make sure the sender is in the room before fanning out.
	room := ConversationRoom(msg.ConversationID)
	g.hub.Join(room, client)

	g.hub.Broadcast(room, encodeEvent(EventNewMessage, messageEventPayload{Message: msg}), client)
	client.enqueue(encodeEvent(EventMessageSent, messageEventPayload{Message: msg}))

	// Reach the direct receiver's personal room only when none of their
	// connections is in the conversation room yet; a receiver present in
	// both rooms must not see the frame twice.
	if msg.ReceiverID != nil && !g.hub.UserInRoom(room, *msg.ReceiverID) {
		g.hub.Broadcast(UserRoom(*msg.ReceiverID), encodeEvent(EventNewMessage, messageEventPayload{Message: msg}), client)
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, client *Client, conversationID uuid.UUID) {
	count, err := g.service.MarkMessagesAsRead(ctx, conversationID, client.userID)
	if err != nil {
		g.sendError(client, err)
		return
	}

	g.hub.Broadcast(ConversationRoom(conversationID), encodeEvent(EventMessagesRead, messagesReadEvent{
		ConversationID: conversationID,
		UserID:         client.userID,
		Count:          count,
		ReadAt:         time.Now(),
	}), nil)
}

func (g *Gateway) handleMarkMessageRead(ctx context.Context, client *Client, messageID uuid.UUID) {
	conversationID, err := g.service.MarkMessageAsRead(ctx, messageID, client.userID)
	if err != nil {
		g.sendError(client, err)
		return
	}

	g.hub.Broadcast(ConversationRoom(conversationID), encodeEvent(EventMessageRead, messageReadEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         client.userID,
		ReadAt:         time.Now(),
	}), nil)
}

func (g *Gateway) handleAddReaction(ctx context.Context, client *Client, messageID uuid.UUID, emoji string) {
	reaction, conversationID, err := g.service.AddReaction(ctx, messageID, client.userID, emoji)
	if err != nil {
		g.sendError(client, err)
		return
	}

	g.hub.Broadcast(ConversationRoom(conversationID), encodeEvent(EventReactionAdded, reactionEvent{
		ConversationID: conversationID,
		MessageID:      reaction.MessageID,
		UserID:         reaction.UserID,
		Emoji:          reaction.Emoji,
	}), nil)
}

func (g *Gateway) handleRemoveReaction(ctx context.Context, client *Client, messageID uuid.UUID, emoji string) {
	conversationID, err := g.service.RemoveReaction(ctx, messageID, client.userID, emoji)
	if err != nil {
		g.sendError(client, err)
		return
	}

	g.hub.Broadcast(ConversationRoom(conversationID), encodeEvent(EventReactionRemoved, reactionEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         client.userID,
		Emoji:          emoji,
	}), nil)
}

// decode unmarshals an event payload, answering malformed input with an
// error event.
func (g *Gateway) decode(client *Client, raw json.RawMessage, out interface{}) bool {
	if len(raw) == 0 {
		client.enqueue(encodeEvent(EventError, errorEvent{
			Code:    string(apperrors.ErrCodeValidation),
			Message: "event payload is required",
		}))
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		client.enqueue(encodeEvent(EventError, errorEvent{
			Code:    string(apperrors.ErrCodeValidation),
			Message: "malformed event payload",
		}))
		return false
	}
	return true
}

// sendError maps a service error to an error event for the originating
// connection only
func (g *Gateway) sendError(client *Client, err error) {
	appErr := apperrors.GetAppError(err)
	client.enqueue(encodeEvent(EventError, errorEvent{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}))
	if g.metrics != nil {
		g.metrics.RecordWebSocketError(string(appErr.Code))
	}
}
