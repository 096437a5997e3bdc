package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hintquest/apiserver/types"
)

// ProgressRepository handles persistence for per-user challenge progress.
// Every mutation is a single conditional statement so concurrent requests
// for the same (user, challenge) row never lose updates.
type ProgressRepository struct {
	db *sql.DB

	// beforeDelete runs ahead of each delete statement inside Reset.
	beforeDelete func(table string) error
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `user_id, challenge_id, hints_used, attempts, completed, points_earned, completed_at, created_at, updated_at`

func scanProgress(row rowScanner) (types.Progress, error) {
	var progress types.Progress
	var points sql.NullInt64
	var completedAt sql.NullTime
	err := row.Scan(
		&progress.UserID,
		&progress.ChallengeID,
		&progress.HintsUsed,
		&progress.Attempts,
		&progress.Completed,
		&points,
		&completedAt,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Progress{}, ErrNotFound
		}
		return types.Progress{}, err
	}
	if points.Valid {
		p := int(points.Int64)
		progress.PointsEarned = &p
	}
	progress.CompletedAt = timePtr(completedAt)
	return progress, nil
}

func (r *ProgressRepository) Get(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 AND challenge_id = $2`
	return scanProgress(r.db.QueryRowContext(ctx, query, userID, challengeID))
}

// GetOrInit returns the progress row, creating a zeroed one on first access.
func (r *ProgressRepository) GetOrInit(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	now := time.Now().UTC()
	const insert = `
		INSERT INTO progress (user_id, challenge_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id, challenge_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, userID, challengeID, now); err != nil {
		return types.Progress{}, err
	}
	return r.Get(ctx, userID, challengeID)
}

// RecordAttempt increments the attempt counter of an incomplete row,
// creating the row if needed.
func (r *ProgressRepository) RecordAttempt(ctx context.Context, userID int, challengeID string) (types.Progress, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO progress (user_id, challenge_id, attempts, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (user_id, challenge_id) DO UPDATE
		SET attempts = progress.attempts + 1,
			updated_at = EXCLUDED.updated_at
		WHERE progress.completed = FALSE
		RETURNING ` + progressColumns
	progress, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, challengeID, now))
	if errors.Is(err, ErrNotFound) {
		return types.Progress{}, ErrAlreadyCompleted
	}
	return progress, err
}

// ConsumeHint increments hints_used while the row is incomplete and below limit.
// The returned row's HintsUsed is the 1-based index of the hint just revealed.
func (r *ProgressRepository) ConsumeHint(ctx context.Context, userID int, challengeID string, limit int) (types.Progress, error) {
	if _, err := r.GetOrInit(ctx, userID, challengeID); err != nil {
		return types.Progress{}, err
	}

	query := `
		UPDATE progress
		SET hints_used = hints_used + 1,
			updated_at = $3
		WHERE user_id = $1 AND challenge_id = $2
		  AND completed = FALSE
		  AND hints_used < $4
		RETURNING ` + progressColumns
	progress, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, challengeID, time.Now().UTC(), limit))
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Progress{}, err
	}

	current, getErr := r.Get(ctx, userID, challengeID)
	if getErr != nil {
		return types.Progress{}, getErr
	}
	if current.Completed {
		return types.Progress{}, ErrAlreadyCompleted
	}
	return types.Progress{}, ErrHintsExhausted
}

// Complete marks the row completed with the given points. It succeeds once.
func (r *ProgressRepository) Complete(ctx context.Context, userID int, challengeID string, points int) (types.Progress, error) {
	now := time.Now().UTC()
	query := `
		UPDATE progress
		SET completed = TRUE,
			points_earned = $3,
			completed_at = $4,
			updated_at = $4
		WHERE user_id = $1 AND challenge_id = $2 AND completed = FALSE
		RETURNING ` + progressColumns
	progress, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, challengeID, points, now))
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Progress{}, err
	}
	if _, getErr := r.Get(ctx, userID, challengeID); getErr != nil {
		return types.Progress{}, getErr
	}
	return types.Progress{}, ErrAlreadyCompleted
}

// Reset deletes progress, rewards and announcements for a user, limited to
// one challenge when challengeID is non-nil. It returns the number of
// progress rows removed.
func (r *ProgressRepository) Reset(ctx context.Context, userID int, challengeID *string) (int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	if challengeID != nil {
		where += ` AND challenge_id = $2`
		args = append(args, *challengeID)
	}

	var removed int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"announcements", "rewards", "progress"} {
			if r.beforeDelete != nil {
				if err := r.beforeDelete(table); err != nil {
					return err
				}
			}
			result, err := tx.ExecContext(ctx, `DELETE FROM `+table+where, args...)
			if err != nil {
				return err
			}
			if table == "progress" {
				affected, err := result.RowsAffected()
				if err != nil {
					return err
				}
				removed = int(affected)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *ProgressRepository) ListByUser(ctx context.Context, userID int) ([]types.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 ORDER BY created_at, challenge_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]types.Progress, 0)
	for rows.Next() {
		progress, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, progress)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ProgressRepository) UserTotals(ctx context.Context, userID int) (types.UserTotals, error) {
	const query = `
		SELECT
			COUNT(1) FILTER (WHERE completed),
			COALESCE(SUM(points_earned) FILTER (WHERE completed), 0),
			COALESCE(SUM(hints_used), 0),
			COALESCE(SUM(attempts), 0)
		FROM progress
		WHERE user_id = $1`
	totals := types.UserTotals{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&totals.Completed,
		&totals.TotalPoints,
		&totals.TotalHints,
		&totals.TotalAttempts,
	)
	if err != nil {
		return types.UserTotals{}, err
	}
	return totals, nil
}

func (r *ProgressRepository) ChallengeStats(ctx context.Context, challengeID string) (types.ChallengeStats, error) {
	const query = `
		SELECT
			COUNT(1) FILTER (WHERE completed),
			COUNT(1),
			COALESCE(AVG(hints_used) FILTER (WHERE completed), 0),
			COALESCE(AVG(attempts) FILTER (WHERE completed), 0)
		FROM progress
		WHERE challenge_id = $1`
	stats := types.ChallengeStats{ChallengeID: challengeID}
	err := r.db.QueryRowContext(ctx, query, challengeID).Scan(
		&stats.Completions,
		&stats.Players,
		&stats.AverageHints,
		&stats.AverageAttempts,
	)
	if err != nil {
		return types.ChallengeStats{}, err
	}
	return stats, nil
}

// Leaderboard ranks users with at least one completion by total points.
func (r *ProgressRepository) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	if limit < 1 {
		limit = 10
	}
	const query = `
		SELECT u.id, u.external_id, u.display_name,
			COALESCE(SUM(p.points_earned), 0) AS points,
			COUNT(1) AS completed
		FROM progress p
		JOIN users u ON u.id = p.user_id
		WHERE p.completed
		GROUP BY u.id, u.external_id, u.display_name
		ORDER BY points DESC, completed DESC, u.id
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry types.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.ExternalID, &entry.DisplayName, &entry.Points, &entry.Completed); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
