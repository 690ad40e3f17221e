package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"learnhub-backend/internal/domain"
)

// Client -> server event names
const (
	EventJoinUser          = "join_user"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkRead          = "mark_read"
	EventMarkMessageRead   = "mark_message_read"
	EventAddReaction       = "add_reaction"
	EventRemoveReaction    = "remove_reaction"
)

// Server -> client event names
const (
	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventUserTyping      = "user_typing"
	EventMessagesRead    = "messages_read"
	EventMessageRead     = "message_read"
	EventReactionAdded   = "reaction_added"
	EventReactionRemoved = "reaction_removed"
	EventError           = "error"
)

// Envelope is the wire frame for every gateway event
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// conversationPayload targets one conversation
type conversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// messagePayload targets one message
type messagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

// reactionPayload carries reaction operations
type reactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

// typingEvent is relayed to the conversation room, never persisted
type typingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Typing         bool      `json:"typing"`
}

// messagesReadEvent announces a bulk read
type messagesReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"read_at"`
}

// messageReadEvent announces a per-message receipt
type messageReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// reactionEvent announces an added or removed reaction
type reactionEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	Emoji          string    `json:"emoji"`
}

// errorEvent is delivered to the originating connection only
type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeEvent marshals an envelope; marshal failures on server-built payloads
// indicate a programming error and yield a generic error frame.
func encodeEvent(eventType string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(`{}`)
	}
	data, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return []byte(`{"type":"error","payload":{"code":"INTERNAL_ERROR","message":"encoding failed"}}`)
	}
	return data
}

// messageEventPayload wraps the hydrated message for new_message/message_sent
type messageEventPayload struct {
	Message *domain.MessageResponse `json:"message"`
}
