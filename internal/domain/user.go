package domain

import (
	"github.com/google/uuid"
)

// User is the display identity resolved from the platform's user directory.
// The messaging core only reads it, never mutates it.
type User struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
}

// UserResponse is the identity representation embedded in message payloads
type UserResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

// ToResponse converts User to its client representation
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		UserID:    u.UserID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.AvatarURL,
	}
}

// UnknownUser is the fallback identity rendered when the directory has no
// record for a user id.
func UnknownUser(userID uuid.UUID) *UserResponse {
	return &UserResponse{
		UserID:   userID,
		Username: "Unknown",
	}
}
