package services

import (
	"context"
	"log/slog"

	"github.com/hintquest/apiserver/types"
)

// ProgressRepository defines persistence operations for progress rows.
type ProgressRepository interface {
	Get(ctx context.Context, userID int, challengeID string) (types.Progress, error)
	GetOrInit(ctx context.Context, userID int, challengeID string) (types.Progress, error)
	RecordAttempt(ctx context.Context, userID int, challengeID string) (types.Progress, error)
	ConsumeHint(ctx context.Context, userID int, challengeID string, limit int) (types.Progress, error)
	Complete(ctx context.Context, userID int, challengeID string, points int) (types.Progress, error)
	Reset(ctx context.Context, userID int, challengeID *string) (int, error)
	ListByUser(ctx context.Context, userID int) ([]types.Progress, error)
	UserTotals(ctx context.Context, userID int) (types.UserTotals, error)
	ChallengeStats(ctx context.Context, challengeID string) (types.ChallengeStats, error)
	Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error)
}

// ProgressService exposes per-user progress tracking and its aggregates.
type ProgressService struct {
	repo   ProgressRepository
	logger *slog.Logger
}

func NewProgressService(repo ProgressRepository, logger *slog.Logger) *ProgressService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressService{repo: repo, logger: logger}
}

func (s *ProgressService) Get(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	progress, err := s.repo.Get(ctx, userID, challengeID)
	return progress, translate(err)
}

// GetOrInit returns the row for (user, challenge), creating it on first access.
func (s *ProgressService) GetOrInit(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	progress, err := s.repo.GetOrInit(ctx, userID, challengeID)
	return progress, translate(err)
}

// RecordAttempt counts a submitted answer before it is judged.
func (s *ProgressService) RecordAttempt(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	progress, err := s.repo.RecordAttempt(ctx, userID, challengeID)
	return progress, translate(err)
}

// ConsumeHint spends the next hint and returns the row with the new count.
func (s *ProgressService) ConsumeHint(ctx context.Context, userID int, challengeID string, available int) (types.Progress, error) {
	progress, err := s.repo.ConsumeHint(ctx, userID, challengeID, available)
	return progress, translate(err)
}

// Complete freezes the row with the awarded points.
func (s *ProgressService) Complete(ctx context.Context, userID int, challengeID string, points int) (types.Progress, error) {
	if points < 0 {
		return types.Progress{}, invalid("points", "must not be negative")
	}
	progress, err := s.repo.Complete(ctx, userID, challengeID, points)
	return progress, translate(err)
}

// Reset wipes a user's progress, rewards and announcements for one challenge,
// or for all of them when challengeID is nil. Admin only.
func (s *ProgressService) Reset(ctx context.Context, actor types.User, userID int, challengeID *string) (int, error) {
	if !actor.IsAdmin() {
		return 0, ErrPermissionDenied
	}
	removed, err := s.repo.Reset(ctx, userID, challengeID)
	if err != nil {
		return 0, translate(err)
	}
	scope := "all"
	if challengeID != nil {
		scope = *challengeID
	}
	s.logger.Info("progress reset", "actor", actor.ExternalID, "user_id", userID, "scope", scope, "removed", removed)
	return removed, nil
}

func (s *ProgressService) ListByUser(ctx context.Context, userID int) ([]types.Progress, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	return list, translate(err)
}

func (s *ProgressService) UserTotals(ctx context.Context, userID int) (types.UserTotals, error) {
	totals, err := s.repo.UserTotals(ctx, userID)
	return totals, translate(err)
}

func (s *ProgressService) ChallengeStats(ctx context.Context, challengeID string) (types.ChallengeStats, error) {
	stats, err := s.repo.ChallengeStats(ctx, challengeID)
	return stats, translate(err)
}

func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	entries, err := s.repo.Leaderboard(ctx, limit)
	return entries, translate(err)
}
