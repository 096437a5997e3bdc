package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/hintquest/apiserver/types"
)

// ApprovalService drives the admin-only challenge lifecycle.
type ApprovalService struct {
	repo     ChallengeRepository
	index    *ChallengeIndex
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewApprovalService(repo ChallengeRepository, index *ChallengeIndex, notifier Notifier, logger *slog.Logger) *ApprovalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalService{
		repo:     repo,
		index:    index,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Approve publishes a pending challenge. It must carry a configured reward.
func (s *ApprovalService) Approve(ctx context.Context, actor types.User, id string) (types.Challenge, error) {
	return s.transition(ctx, actor, id, ActionApprove, "")
}

// Reject declines a pending or approved challenge with feedback for the owner.
func (s *ApprovalService) Reject(ctx context.Context, actor types.User, id, feedback string) (types.Challenge, error) {
	return s.transition(ctx, actor, id, ActionReject, feedback)
}

// Disable hides an approved challenge, keeping its approval for reinstatement.
func (s *ApprovalService) Disable(ctx context.Context, actor types.User, id, reason string) (types.Challenge, error) {
	return s.transition(ctx, actor, id, ActionDisable, reason)
}

// Reenable restores a disabled challenge without another review.
func (s *ApprovalService) Reenable(ctx context.Context, actor types.User, id string) (types.Challenge, error) {
	return s.transition(ctx, actor, id, ActionReenable, "")
}

func (s *ApprovalService) transition(ctx context.Context, actor types.User, id string, action Action, reason string) (types.Challenge, error) {
	if !actor.IsAdmin() {
		return types.Challenge{}, ErrPermissionDenied
	}
	challenge, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	return s.commit(ctx, challenge, action, actor.ExternalID, reason)
}

// revise sends an edited approved challenge back to review. The caller has
// already checked ownership and applied the edit to challenge.
func (s *ApprovalService) revise(ctx context.Context, actor types.User, challenge types.Challenge) (types.Challenge, error) {
	return s.commit(ctx, challenge, ActionRevise, actor.ExternalID, "core gameplay fields changed")
}

func (s *ApprovalService) commit(ctx context.Context, challenge types.Challenge, action Action, actor, reason string) (types.Challenge, error) {
	from := challenge.State
	at := s.now()
	if err := applyTransition(&challenge, action, actor, reason, at); err != nil {
		return types.Challenge{}, err
	}

	updated, err := s.repo.Update(ctx, challenge)
	if err != nil {
		return types.Challenge{}, translate(err)
	}
	s.logger.Info("challenge transitioned",
		"challenge_id", updated.ID,
		"action", action,
		"from", from,
		"to", updated.State,
		"actor", actor,
	)

	s.index.refresh(ctx)
	if s.notifier != nil {
		event := types.LifecycleEvent{
			ChallengeID:     updated.ID,
			ChallengeName:   updated.Name,
			OwnerExternalID: updated.OwnerExternalID,
			From:            from,
			To:              updated.State,
			Actor:           actor,
			Reason:          reason,
			At:              at,
		}
		if err := s.notifier.LifecycleChanged(ctx, event); err != nil {
			s.logger.Warn("lifecycle notification failed", "challenge_id", updated.ID, "error", err)
		}
	}
	return updated, nil
}
