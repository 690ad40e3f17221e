package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation kinds
const (
	ConversationKindDirect = "direct"
	ConversationKindGroup  = "group"
)

// Participant roles
const (
	ParticipantRoleMember = "member"
	ParticipantRoleAdmin  = "admin"
)

// Conversation represents conversation metadata
// Maps to the conversations table
type Conversation struct {
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Kind           string    `json:"kind" db:"kind"`           // direct, group
	Name           *string   `json:"name,omitempty" db:"name"` // Required for group chats
	Description    *string   `json:"description,omitempty" db:"description"`
	CreatedBy      uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationParticipant represents a user's membership in a conversation.
// Rows are never physically deleted: leaving sets LeftAt, rejoining clears it.
// Maps to the conversation_participants table, PK (conversation_id, user_id)
type ConversationParticipant struct {
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Role           string     `json:"role" db:"role"` // admin, member
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty" db:"left_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	IsMuted        bool       `json:"is_muted" db:"is_muted"`
}

// IsActive reports whether the membership is current (left_at not set)
func (p *ConversationParticipant) IsActive() bool {
	return p.LeftAt == nil
}

// ConversationCreate represents data to create a new conversation
type ConversationCreate struct {
	Kind           string      `json:"kind" binding:"required,oneof=direct group"`
	Name           *string     `json:"name,omitempty"`
	Description    *string     `json:"description,omitempty"`
	ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"required,min=2"`
}

// ConversationUpdate represents mutable conversation metadata
type ConversationUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ParticipantResponse is a participant with resolved identity
type ParticipantResponse struct {
	UserID     uuid.UUID  `json:"user_id"`
	Username   string     `json:"username"`
	Email      string     `json:"email,omitempty"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	AvatarURL  *string    `json:"avatar_url,omitempty"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	IsMuted    bool       `json:"is_muted"`
}

// ConversationResponse is the full conversation data with participants
type ConversationResponse struct {
	ConversationID uuid.UUID             `json:"conversation_id"`
	Kind           string                `json:"kind"`
	Name           *string               `json:"name,omitempty"`
	Description    *string               `json:"description,omitempty"`
	CreatedBy      uuid.UUID             `json:"created_by"`
	Participants   []ParticipantResponse `json:"participants"`
	LastMessage    *MessageResponse      `json:"last_message,omitempty"`
	UnreadCount    int64                 `json:"unread_count"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
