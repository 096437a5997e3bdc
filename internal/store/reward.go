package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hintquest/apiserver/types"
)

// RewardRepository stores issued rewards. Records are append-only.
type RewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

const rewardColumns = `id, user_id, challenge_id, reward_type, payload, issued_at`

func scanReward(row rowScanner) (types.RewardRecord, error) {
	var record types.RewardRecord
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.ChallengeID,
		&record.Type,
		&record.Payload,
		&record.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RewardRecord{}, ErrNotFound
		}
		return types.RewardRecord{}, err
	}
	return record, nil
}

func (r *RewardRepository) Get(ctx context.Context, userID int, challengeID string) (types.RewardRecord, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE user_id = $1 AND challenge_id = $2`
	return scanReward(r.db.QueryRowContext(ctx, query, userID, challengeID))
}

// Create appends a reward record. A second record for the same
// (user, challenge) pair fails with ErrConflict.
func (r *RewardRepository) Create(ctx context.Context, record types.RewardRecord) (types.RewardRecord, error) {
	if record.IssuedAt.IsZero() {
		record.IssuedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO rewards (user_id, challenge_id, reward_type, payload, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		record.UserID,
		record.ChallengeID,
		string(record.Type),
		record.Payload,
		record.IssuedAt,
	).Scan(&record.ID); err != nil {
		if isUniqueViolation(err) {
			return types.RewardRecord{}, ErrConflict
		}
		return types.RewardRecord{}, err
	}
	return record, nil
}

func (r *RewardRepository) ListByUser(ctx context.Context, userID int) ([]types.RewardRecord, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE user_id = $1 ORDER BY issued_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.RewardRecord, 0)
	for rows.Next() {
		record, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
