package types

import (
	"encoding/json"
	"time"
)

// ChallengeState is the lifecycle state of a challenge in the approval workflow.
type ChallengeState string

// Supported lifecycle states.
const (
	// StatePending marks a challenge waiting for admin review.
	StatePending ChallengeState = "pending"

	// StateApproved marks a challenge that is visible and playable.
	StateApproved ChallengeState = "approved"

	// StateRejected marks a challenge an admin declined, with feedback.
	StateRejected ChallengeState = "rejected"

	// StateDisabled marks a previously approved challenge hidden from players.
	StateDisabled ChallengeState = "disabled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s ChallengeState) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateDisabled:
		return true
	default:
		return false
	}
}

// Challenge represents a puzzle submitted by a content creator.
// It contains the answer, escalating hints, a difficulty used for the score bonus,
// the reward granted on completion, and workflow metadata.
type Challenge struct {
	// ID is a slug derived from the name, the owner and the creation instant.
	ID string `json:"id" db:"id"`

	// Name is the human-readable title of the challenge.
	Name string `json:"name" db:"name"`

	// Description is the full challenge statement shown to players.
	Description string `json:"description" db:"description"`

	// AuthorName is the credited author, which may differ from the owner.
	AuthorName string `json:"author_name" db:"author_name"`

	// OwnerExternalID is the external account id of the creator who owns it.
	OwnerExternalID string `json:"owner_external_id" db:"owner_external_id"`

	// Answer is the expected answer. It is compared ignoring case and whitespace
	// and is never included in player-facing projections.
	Answer string `json:"answer" db:"answer"`

	// Difficulty ranges from 1 to 4 and scales the completion score.
	Difficulty int `json:"difficulty" db:"difficulty"`

	// Reward is granted on completion. It may be nil until approval.
	Reward Reward `json:"-" db:"-"`

	// Hints is the ordered list of clues; the n-th consumed hint reveals Hints[n-1].
	Hints []string `json:"hints" db:"hints"`

	// State is the current lifecycle state.
	State ChallengeState `json:"state" db:"state"`

	// ApprovedBy is the external id of the approving admin.
	ApprovedBy string `json:"approved_by,omitempty" db:"approved_by"`

	// ApprovedAt is the approval timestamp.
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`

	// RejectedBy is the external id of the rejecting admin.
	RejectedBy string `json:"rejected_by,omitempty" db:"rejected_by"`

	// RejectedAt is the rejection timestamp.
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`

	// Feedback is the reason given on rejection.
	Feedback string `json:"feedback,omitempty" db:"feedback"`

	// DisabledBy is the external id of the admin who disabled the challenge.
	DisabledBy string `json:"disabled_by,omitempty" db:"disabled_by"`

	// DisabledAt is the timestamp the challenge was disabled.
	DisabledAt *time.Time `json:"disabled_at,omitempty" db:"disabled_at"`

	// DisabledReason is the reason given when disabling.
	DisabledReason string `json:"disabled_reason,omitempty" db:"disabled_reason"`

	// Version increments on every write and guards concurrent updates.
	Version int `json:"version" db:"version"`

	// CreatedAt is the timestamp at which the challenge was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MarshalJSON renders the reward sum type in its flat document form.
func (c Challenge) MarshalJSON() ([]byte, error) {
	type alias Challenge
	return json.Marshal(struct {
		alias
		Reward *RewardDocument `json:"reward,omitempty"`
	}{
		alias:  alias(c),
		Reward: DocumentFor(c.Reward),
	})
}

// Visible reports whether ordinary players may see the challenge.
func (c Challenge) Visible() bool {
	return c.State == StateApproved
}

// HoldsApproval reports whether the challenge carries a standing approval,
// either live or suspended by a disable.
func (c Challenge) HoldsApproval() bool {
	return c.State == StateApproved || c.State == StateDisabled
}

// Summary returns the player-facing projection.
func (c Challenge) Summary() ChallengeSummary {
	summary := ChallengeSummary{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		AuthorName:  c.AuthorName,
		Difficulty:  c.Difficulty,
		HintCount:   len(c.Hints),
	}
	if c.Reward != nil {
		summary.RewardType = c.Reward.Type()
	}
	return summary
}

// ChallengeSummary is the non-secret projection of a challenge used for
// listings and autocomplete. It excludes the answer, the reward payload,
// the owner and workflow metadata.
type ChallengeSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AuthorName  string     `json:"author_name"`
	Difficulty  int        `json:"difficulty"`
	HintCount   int        `json:"hint_count"`
	RewardType  RewardType `json:"reward_type,omitempty"`
}

// ChallengeFilter narrows challenge listings.
type ChallengeFilter struct {
	// States restricts results to the given lifecycle states. Empty means all.
	States []ChallengeState

	// OwnerExternalID restricts results to one owner. Empty means any.
	OwnerExternalID string

	Offset int
	Limit  int
}

// ChallengeStats aggregates progress rows of a single challenge.
type ChallengeStats struct {
	ChallengeID string `json:"challenge_id"`

	// Completions is the number of players who solved the challenge.
	Completions int `json:"completions"`

	// Players is the number of distinct players who interacted with it.
	Players int `json:"players"`

	// AverageHints is the mean hints used among completers.
	AverageHints float64 `json:"average_hints"`

	// AverageAttempts is the mean attempts among completers.
	AverageAttempts float64 `json:"average_attempts"`
}
