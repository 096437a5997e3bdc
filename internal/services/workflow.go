package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/hintquest/apiserver/types"
)

// Action is an approval workflow operation.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionDisable  Action = "disable"
	ActionReenable Action = "reenable"
	ActionRevise   Action = "revise"
)

// Actions lists every workflow action.
var Actions = []Action{ActionApprove, ActionReject, ActionDisable, ActionReenable, ActionRevise}

type transition struct {
	from []types.ChallengeState
	to   types.ChallengeState
}

// transitions is the complete table of legal lifecycle moves.
var transitions = map[Action]transition{
	ActionApprove:  {from: []types.ChallengeState{types.StatePending}, to: types.StateApproved},
	ActionReject:   {from: []types.ChallengeState{types.StatePending, types.StateApproved}, to: types.StateRejected},
	ActionDisable:  {from: []types.ChallengeState{types.StateApproved}, to: types.StateDisabled},
	ActionReenable: {from: []types.ChallengeState{types.StateDisabled}, to: types.StateApproved},
	ActionRevise:   {from: []types.ChallengeState{types.StateApproved, types.StateDisabled}, to: types.StatePending},
}

// NextState reports the state action leads to from the given state.
func NextState(from types.ChallengeState, action Action) (types.ChallengeState, bool) {
	t, ok := transitions[action]
	if !ok {
		return "", false
	}
	for _, state := range t.from {
		if state == from {
			return t.to, true
		}
	}
	return "", false
}

// applyTransition moves challenge through action, enforcing the table and
// per-action requirements, and rewrites the fields owned by each state.
func applyTransition(challenge *types.Challenge, action Action, actor, reason string, at time.Time) error {
	to, ok := NextState(challenge.State, action)
	if !ok {
		return fmt.Errorf("%w: cannot %s a %s challenge", ErrInvalidTransition, action, challenge.State)
	}
	reason = strings.TrimSpace(reason)

	switch action {
	case ActionApprove:
		if challenge.Reward == nil || !challenge.Reward.Configured() {
			return invalid("reward", "a configured reward is required before approval")
		}
		challenge.ApprovedBy = actor
		challenge.ApprovedAt = &at
		clearRejection(challenge)
		clearDisable(challenge)
	case ActionReject:
		if reason == "" {
			return invalid("reason", "feedback is required")
		}
		challenge.RejectedBy = actor
		challenge.RejectedAt = &at
		challenge.Feedback = reason
		clearApproval(challenge)
		clearDisable(challenge)
	case ActionDisable:
		if reason == "" {
			return invalid("reason", "a reason is required")
		}
		challenge.DisabledBy = actor
		challenge.DisabledAt = &at
		challenge.DisabledReason = reason
	case ActionReenable:
		clearDisable(challenge)
	case ActionRevise:
		clearApproval(challenge)
		clearRejection(challenge)
		clearDisable(challenge)
	}

	challenge.State = to
	return nil
}

func clearApproval(c *types.Challenge) {
	c.ApprovedBy = ""
	c.ApprovedAt = nil
}

func clearRejection(c *types.Challenge) {
	c.RejectedBy = ""
	c.RejectedAt = nil
	c.Feedback = ""
}

func clearDisable(c *types.Challenge) {
	c.DisabledBy = ""
	c.DisabledAt = nil
	c.DisabledReason = ""
}
