package types

import (
	"errors"
	"strings"
	"time"
)

// RewardType identifies the kind of reward granted on completion.
type RewardType string

// Supported reward types.
const (
	RewardTypeBadge RewardType = "badge"
	RewardTypeText  RewardType = "text"
)

// ErrUnknownRewardType is returned when a stored reward kind is not recognised.
var ErrUnknownRewardType = errors.New("unknown reward type")

// Reward is the payload granted when a challenge is completed.
// It is either a BadgeReward or a TextReward.
type Reward interface {
	// Type returns the reward discriminator.
	Type() RewardType

	// Configured reports whether the payload is complete enough to be issued.
	Configured() bool

	isReward()
}

// BadgeReward issues a credential from the external badge service.
type BadgeReward struct {
	// ClassID is the badge class identifier at the credential service.
	ClassID string `json:"class_id" yaml:"class_id"`

	// Description is an optional line appended to the credential narrative.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (BadgeReward) Type() RewardType { return RewardTypeBadge }

func (b BadgeReward) Configured() bool { return strings.TrimSpace(b.ClassID) != "" }

func (BadgeReward) isReward() {}

// TextReward reveals a stored message to the player.
type TextReward struct {
	// Body is the text revealed on completion.
	Body string `json:"body" yaml:"body"`
}

func (TextReward) Type() RewardType { return RewardTypeText }

func (t TextReward) Configured() bool { return strings.TrimSpace(t.Body) != "" }

func (TextReward) isReward() {}

// RewardDocument is the flat wire and storage shape of a Reward.
type RewardDocument struct {
	Type             RewardType `json:"type" yaml:"type"`
	BadgeClassID     string     `json:"badge_class_id,omitempty" yaml:"badge_class_id,omitempty"`
	BadgeDescription string     `json:"badge_description,omitempty" yaml:"badge_description,omitempty"`
	Text             string     `json:"text,omitempty" yaml:"text,omitempty"`
}

// DocumentFor flattens a reward. A nil reward yields nil.
func DocumentFor(r Reward) *RewardDocument {
	switch v := r.(type) {
	case BadgeReward:
		return &RewardDocument{Type: RewardTypeBadge, BadgeClassID: v.ClassID, BadgeDescription: v.Description}
	case TextReward:
		return &RewardDocument{Type: RewardTypeText, Text: v.Body}
	default:
		return nil
	}
}

// Decode converts the flat document back into a Reward.
// An empty type decodes to a nil reward.
func (d RewardDocument) Decode() (Reward, error) {
	switch d.Type {
	case "":
		return nil, nil
	case RewardTypeBadge:
		return BadgeReward{ClassID: d.BadgeClassID, Description: d.BadgeDescription}, nil
	case RewardTypeText:
		return TextReward{Body: d.Text}, nil
	default:
		return nil, ErrUnknownRewardType
	}
}

// RewardRecord is the append-only record of a reward issued to a user.
type RewardRecord struct {
	// ID is the unique identifier of the record.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the recipient.
	UserID int `json:"user_id" db:"user_id"`

	// ChallengeID identifies the completed challenge.
	ChallengeID string `json:"challenge_id" db:"challenge_id"`

	// Type is the kind of reward issued.
	Type RewardType `json:"type" db:"reward_type"`

	// Payload is opaque: the credential service response for badges,
	// or the revealed text for text rewards.
	Payload string `json:"payload" db:"payload"`

	// IssuedAt is the time the reward was recorded.
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`
}
