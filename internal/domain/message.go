package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// DeletedMessageContent replaces the content of a soft-deleted message.
// The original content is unrecoverable once overwritten.
const DeletedMessageContent = "[message deleted]"

// Attachment describes an uploaded file referenced by a message.
// The URL is opaque to the messaging core.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message represents a chat message entity
// Maps to the messages table
type Message struct {
	MessageID      uuid.UUID              `json:"message_id" db:"message_id"`
	ConversationID uuid.UUID              `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID              `json:"sender_id" db:"sender_id"`
	ReceiverID     *uuid.UUID             `json:"receiver_id,omitempty" db:"receiver_id"` // The other participant in a direct conversation
	Content        string                 `json:"content" db:"content"`
	Type           string                 `json:"type" db:"type"` // text, image, file, system
	Attachments    []Attachment           `json:"attachments,omitempty" db:"attachments"`
	ReplyToID      *uuid.UUID             `json:"reply_to_id,omitempty" db:"reply_to_id"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	IsRead         bool                   `json:"is_read" db:"is_read"`
	ReadAt         *time.Time             `json:"read_at,omitempty" db:"read_at"`
	IsEdited       bool                   `json:"is_edited" db:"is_edited"`
	EditedAt       *time.Time             `json:"edited_at,omitempty" db:"edited_at"`
	IsDeleted      bool                   `json:"is_deleted" db:"is_deleted"`
	DeletedAt      *time.Time             `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// MessageReaction is one emoji reaction by one user.
// PK (message_id, user_id, emoji); re-adding the same triple is a no-op
type MessageReaction struct {
	MessageID uuid.UUID `json:"message_id" db:"message_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Emoji     string    `json:"emoji" db:"emoji"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MessageRead is a per-user read receipt, distinct from the coarse
// conversation-level last_read_at on the participant row.
// PK (message_id, user_id)
type MessageRead struct {
	MessageID uuid.UUID `json:"message_id" db:"message_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}

// MessageCreate represents data needed to send a message.
// Exactly one of ConversationID / ReceiverID must resolve to a target:
// a bare ReceiverID creates (or reuses) the direct conversation first.
type MessageCreate struct {
	ConversationID *uuid.UUID             `json:"conversation_id,omitempty"`
	ReceiverID     *uuid.UUID             `json:"receiver_id,omitempty"`
	Content        string                 `json:"content"`
	Type           string                 `json:"type,omitempty"`
	Attachments    []Attachment           `json:"attachments,omitempty"`
	ReplyToID      *uuid.UUID             `json:"reply_to_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// MessageResponse represents the message returned to clients
type MessageResponse struct {
	MessageID      uuid.UUID              `json:"message_id"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	SenderID       uuid.UUID              `json:"sender_id"`
	Sender         *UserResponse          `json:"sender,omitempty"`
	ReceiverID     *uuid.UUID             `json:"receiver_id,omitempty"`
	Receiver       *UserResponse          `json:"receiver,omitempty"`
	Content        string                 `json:"content"`
	Type           string                 `json:"type"`
	Attachments    []Attachment           `json:"attachments,omitempty"`
	ReplyToID      *uuid.UUID             `json:"reply_to_id,omitempty"`
	ReplyTo        *MessageResponse       `json:"reply_to,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Reactions      []MessageReaction      `json:"reactions,omitempty"`
	IsRead         bool                   `json:"is_read"`
	ReadAt         *time.Time             `json:"read_at,omitempty"`
	IsEdited       bool                   `json:"is_edited"`
	EditedAt       *time.Time             `json:"edited_at,omitempty"`
	IsDeleted      bool                   `json:"is_deleted"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
