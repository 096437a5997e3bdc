package types

import "time"

// Event channels published to the message broker.
const (
	ChannelCompleted = "challenge.completed"
	ChannelLifecycle = "challenge.lifecycle"
)

// CompletionEvent is emitted after a player solves a challenge.
type CompletionEvent struct {
	UserID        int       `json:"user_id"`
	ExternalID    string    `json:"external_id"`
	DisplayName   string    `json:"display_name"`
	ChallengeID   string    `json:"challenge_id"`
	ChallengeName string    `json:"challenge_name"`
	Points        int       `json:"points"`
	CompletedAt   time.Time `json:"completed_at"`
}

// LifecycleEvent is emitted after every approval workflow transition.
type LifecycleEvent struct {
	ChallengeID     string         `json:"challenge_id"`
	ChallengeName   string         `json:"challenge_name"`
	OwnerExternalID string         `json:"owner_external_id"`
	From            ChallengeState `json:"from"`
	To              ChallengeState `json:"to"`
	Actor           string         `json:"actor"`
	Reason          string         `json:"reason,omitempty"`
	At              time.Time      `json:"at"`
}
