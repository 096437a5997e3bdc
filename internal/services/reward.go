package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hintquest/apiserver/internal/store"
	"github.com/hintquest/apiserver/types"
)

// CredentialIssuer issues a badge credential to a recipient and returns the
// raw response of the credential service.
type CredentialIssuer interface {
	Issue(ctx context.Context, recipientEmail, badgeClassID, narrative string) (string, error)
}

// RewardRepository defines persistence operations for issued rewards.
type RewardRepository interface {
	Get(ctx context.Context, userID int, challengeID string) (types.RewardRecord, error)
	Create(ctx context.Context, record types.RewardRecord) (types.RewardRecord, error)
	ListByUser(ctx context.Context, userID int) ([]types.RewardRecord, error)
}

// RewardDispatcher grants the reward of a completed challenge. Each call is
// one attempt; failures are returned to the caller and nothing is recorded.
type RewardDispatcher struct {
	repo   RewardRepository
	issuer CredentialIssuer
	logger *slog.Logger
}

func NewRewardDispatcher(repo RewardRepository, issuer CredentialIssuer, logger *slog.Logger) *RewardDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RewardDispatcher{repo: repo, issuer: issuer, logger: logger}
}

// Dispatch issues the challenge reward to user. A reward already issued for
// the pair is returned unchanged.
func (d *RewardDispatcher) Dispatch(ctx context.Context, user types.User, challenge types.Challenge) (types.RewardRecord, error) {
	existing, err := d.repo.Get(ctx, user.ID, challenge.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.RewardRecord{}, translate(err)
	}

	var payload string
	switch reward := challenge.Reward.(type) {
	case types.BadgeReward:
		payload, err = d.issueBadge(ctx, user, challenge, reward)
		if err != nil {
			return types.RewardRecord{}, err
		}
	case types.TextReward:
		if strings.TrimSpace(reward.Body) == "" {
			return types.RewardRecord{}, invalid("reward", "reward text is empty")
		}
		payload = reward.Body
	default:
		return types.RewardRecord{}, ErrUnknownRewardType
	}

	record, err := d.repo.Create(ctx, types.RewardRecord{
		UserID:      user.ID,
		ChallengeID: challenge.ID,
		Type:        challenge.Reward.Type(),
		Payload:     payload,
	})
	if errors.Is(err, store.ErrConflict) {
		// A concurrent dispatch won the insert.
		existing, getErr := d.repo.Get(ctx, user.ID, challenge.ID)
		return existing, translate(getErr)
	}
	if err != nil {
		return types.RewardRecord{}, translate(err)
	}
	d.logger.Info("reward issued", "user_id", user.ID, "challenge_id", challenge.ID, "type", record.Type)
	return record, nil
}

func (d *RewardDispatcher) issueBadge(ctx context.Context, user types.User, challenge types.Challenge, badge types.BadgeReward) (string, error) {
	if strings.TrimSpace(user.Email) == "" {
		return "", ErrMissingEmail
	}
	if !badge.Configured() {
		return "", invalid("reward", "badge class is missing")
	}
	if d.issuer == nil {
		return "", fmt.Errorf("%w: no credential service configured", ErrExternalService)
	}

	narrative := fmt.Sprintf("Completed the challenge %q.", challenge.Name)
	if desc := strings.TrimSpace(badge.Description); desc != "" {
		narrative += " " + desc
	}

	payload, err := d.issuer.Issue(ctx, user.Email, badge.ClassID, narrative)
	if err != nil {
		d.logger.Error("credential issue failed", "user_id", user.ID, "challenge_id", challenge.ID, "error", err)
		return "", ErrExternalService
	}
	return payload, nil
}

func (d *RewardDispatcher) ListByUser(ctx context.Context, userID int) ([]types.RewardRecord, error) {
	records, err := d.repo.ListByUser(ctx, userID)
	return records, translate(err)
}
