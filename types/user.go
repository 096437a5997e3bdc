package types

import "time"

// Supported user roles.
const (
	RoleUser    = "user"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// User represents a registered community member.
// It links the chat-platform account to the player's progress and rewards.
type User struct {
	// ID is the internal identifier of the user.
	ID int `json:"id" db:"id"`

	// ExternalID is the chat-platform account identifier. It is unique.
	ExternalID string `json:"external_id" db:"external_id"`

	// DisplayName is the name shown in announcements and leaderboards.
	DisplayName string `json:"display_name" db:"display_name"`

	// Email is the optional address used as badge recipient identity.
	// An empty string is stored as NULL so uniqueness only applies to set values.
	Email string `json:"email,omitempty" db:"email"`

	// Role indicates the user's authorization level
	// (e.g., "user", "creator", "admin").
	Role string `json:"role" db:"role"`

	// CreatedAt is the registration timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user may perform administrative actions.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAuthor reports whether the user may submit new challenges.
func (u User) CanAuthor() bool {
	return u.Role == RoleCreator || u.Role == RoleAdmin
}
