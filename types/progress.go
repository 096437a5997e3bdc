package types

import "time"

// Progress is a user's interaction history with one challenge.
// Exactly one row exists per (user, challenge) pair.
type Progress struct {
	// UserID identifies the player.
	UserID int `json:"user_id" db:"user_id"`

	// ChallengeID identifies the challenge.
	ChallengeID string `json:"challenge_id" db:"challenge_id"`

	// HintsUsed is the number of hints consumed. It never decreases
	// except through an admin reset.
	HintsUsed int `json:"hints_used" db:"hints_used"`

	// Attempts is the number of answers submitted.
	Attempts int `json:"attempts" db:"attempts"`

	// Completed flips from false to true once and never back.
	// It is the only source of truth for whether hints or attempts remain allowed.
	Completed bool `json:"completed" db:"completed"`

	// PointsEarned is set once, at completion.
	PointsEarned *int `json:"points_earned,omitempty" db:"points_earned"`

	// CompletedAt is stamped at completion.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// CreatedAt is the first interaction timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the last change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserTotals aggregates all progress rows of a single user.
type UserTotals struct {
	UserID        int `json:"user_id"`
	Completed     int `json:"completed"`
	TotalPoints   int `json:"total_points"`
	TotalHints    int `json:"total_hints"`
	TotalAttempts int `json:"total_attempts"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int    `json:"user_id"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
	Completed   int    `json:"completed"`
}

// Announcement is the append-only audit record of a public success message.
type Announcement struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int       `json:"user_id" db:"user_id"`
	ChallengeID string    `json:"challenge_id" db:"challenge_id"`
	Points      int       `json:"points" db:"points"`
	ChannelRef  string    `json:"channel_ref" db:"channel_ref"`
	MessageRef  string    `json:"message_ref" db:"message_ref"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
