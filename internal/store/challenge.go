package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hintquest/apiserver/types"
	"github.com/lib/pq"
)

// ChallengeRepository handles persistence for challenges.
type ChallengeRepository struct {
	db *sql.DB

	// beforeUpsert runs ahead of each row written by UpsertAll.
	beforeUpsert func(id string) error
}

func NewChallengeRepository(db *sql.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `
	id, name, description, author_name, owner_external_id, answer, difficulty,
	reward_type, badge_class_id, badge_description, reward_text, hints, state,
	approved_by, approved_at, rejected_by, rejected_at, feedback,
	disabled_by, disabled_at, disabled_reason, version, created_at, updated_at`

func scanChallenge(row rowScanner) (types.Challenge, error) {
	var challenge types.Challenge
	var reward types.RewardDocument
	var approvedBy, rejectedBy, feedback, disabledBy, disabledReason sql.NullString
	var approvedAt, rejectedAt, disabledAt sql.NullTime
	err := row.Scan(
		&challenge.ID,
		&challenge.Name,
		&challenge.Description,
		&challenge.AuthorName,
		&challenge.OwnerExternalID,
		&challenge.Answer,
		&challenge.Difficulty,
		&reward.Type,
		&reward.BadgeClassID,
		&reward.BadgeDescription,
		&reward.Text,
		pq.Array(&challenge.Hints),
		&challenge.State,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&feedback,
		&disabledBy,
		&disabledAt,
		&disabledReason,
		&challenge.Version,
		&challenge.CreatedAt,
		&challenge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Challenge{}, ErrNotFound
		}
		return types.Challenge{}, err
	}

	challenge.Reward, err = reward.Decode()
	if err != nil {
		return types.Challenge{}, err
	}
	challenge.ApprovedBy = approvedBy.String
	challenge.ApprovedAt = timePtr(approvedAt)
	challenge.RejectedBy = rejectedBy.String
	challenge.RejectedAt = timePtr(rejectedAt)
	challenge.Feedback = feedback.String
	challenge.DisabledBy = disabledBy.String
	challenge.DisabledAt = timePtr(disabledAt)
	challenge.DisabledReason = disabledReason.String
	if challenge.Hints == nil {
		challenge.Hints = []string{}
	}
	return challenge, nil
}

// challengeArgs returns the column values shared by insert, update and upsert,
// in challengeColumns order starting at name.
func challengeArgs(c types.Challenge) []any {
	reward := types.DocumentFor(c.Reward)
	if reward == nil {
		reward = &types.RewardDocument{}
	}
	hints := c.Hints
	if hints == nil {
		hints = []string{}
	}
	return []any{
		c.Name,
		c.Description,
		c.AuthorName,
		c.OwnerExternalID,
		c.Answer,
		c.Difficulty,
		string(reward.Type),
		reward.BadgeClassID,
		reward.BadgeDescription,
		reward.Text,
		pq.Array(hints),
		string(c.State),
		nullString(c.ApprovedBy),
		nullTime(c.ApprovedAt),
		nullString(c.RejectedBy),
		nullTime(c.RejectedAt),
		nullString(c.Feedback),
		nullString(c.DisabledBy),
		nullTime(c.DisabledAt),
		nullString(c.DisabledReason),
	}
}

func (r *ChallengeRepository) List(ctx context.Context, filter types.ChallengeFilter) ([]types.Challenge, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	states := make([]string, 0, len(filter.States))
	for _, state := range filter.States {
		states = append(states, string(state))
	}

	const where = `
		WHERE (cardinality($1::text[]) = 0 OR state = ANY($1::text[]))
		  AND ($2 = '' OR owner_external_id = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM challenges`+where, pq.Array(states), filter.OwnerExternalID).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + challengeColumns + ` FROM challenges` + where + `
		ORDER BY difficulty, name, id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, pq.Array(states), filter.OwnerExternalID, filter.Offset, filter.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	challenges := make([]types.Challenge, 0, filter.Limit)
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, 0, err
		}
		challenges = append(challenges, challenge)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return challenges, total, nil
}

func (r *ChallengeRepository) Get(ctx context.Context, id string) (types.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	return scanChallenge(r.db.QueryRowContext(ctx, query, id))
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error) {
	now := time.Now().UTC()
	challenge.CreatedAt = now
	challenge.UpdatedAt = now
	challenge.Version = 1

	const query = `
		INSERT INTO challenges (
			name, description, author_name, owner_external_id, answer, difficulty,
			reward_type, badge_class_id, badge_description, reward_text, hints, state,
			approved_by, approved_at, rejected_by, rejected_at, feedback,
			disabled_by, disabled_at, disabled_reason,
			id, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)`
	args := append(challengeArgs(challenge), challenge.ID, challenge.Version, challenge.CreatedAt, challenge.UpdatedAt)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return types.Challenge{}, ErrConflict
		}
		return types.Challenge{}, err
	}
	return challenge, nil
}

// Update writes challenge if its stored version still equals challenge.Version.
// The returned challenge carries the incremented version.
func (r *ChallengeRepository) Update(ctx context.Context, challenge types.Challenge) (types.Challenge, error) {
	challenge.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE challenges
		SET name = $1,
			description = $2,
			author_name = $3,
			owner_external_id = $4,
			answer = $5,
			difficulty = $6,
			reward_type = $7,
			badge_class_id = $8,
			badge_description = $9,
			reward_text = $10,
			hints = $11,
			state = $12,
			approved_by = $13,
			approved_at = $14,
			rejected_by = $15,
			rejected_at = $16,
			feedback = $17,
			disabled_by = $18,
			disabled_at = $19,
			disabled_reason = $20,
			updated_at = $21,
			version = version + 1
		WHERE id = $22 AND version = $23
		RETURNING version`
	args := append(challengeArgs(challenge), challenge.UpdatedAt, challenge.ID, challenge.Version)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&challenge.Version)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return types.Challenge{}, err
		}
		if _, getErr := r.Get(ctx, challenge.ID); getErr != nil {
			return types.Challenge{}, getErr
		}
		return types.Challenge{}, ErrConflict
	}
	return challenge, nil
}

// UpsertAll writes every challenge in one transaction. Existing rows are
// replaced and their version bumped; nothing is written if any row fails.
func (r *ChallengeRepository) UpsertAll(ctx context.Context, challenges []types.Challenge) ([]types.Challenge, error) {
	stored := make([]types.Challenge, 0, len(challenges))
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, challenge := range challenges {
			if r.beforeUpsert != nil {
				if err := r.beforeUpsert(challenge.ID); err != nil {
					return err
				}
			}
			saved, err := upsertChallenge(ctx, tx, challenge)
			if err != nil {
				return err
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func upsertChallenge(ctx context.Context, tx *sql.Tx, challenge types.Challenge) (types.Challenge, error) {
	now := time.Now().UTC()
	challenge.CreatedAt = now
	challenge.UpdatedAt = now

	const query = `
		INSERT INTO challenges (
			name, description, author_name, owner_external_id, answer, difficulty,
			reward_type, badge_class_id, badge_description, reward_text, hints, state,
			approved_by, approved_at, rejected_by, rejected_at, feedback,
			disabled_by, disabled_at, disabled_reason,
			id, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, 1, $22, $22)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			description = EXCLUDED.description,
			author_name = EXCLUDED.author_name,
			owner_external_id = EXCLUDED.owner_external_id,
			answer = EXCLUDED.answer,
			difficulty = EXCLUDED.difficulty,
			reward_type = EXCLUDED.reward_type,
			badge_class_id = EXCLUDED.badge_class_id,
			badge_description = EXCLUDED.badge_description,
			reward_text = EXCLUDED.reward_text,
			hints = EXCLUDED.hints,
			state = EXCLUDED.state,
			approved_by = EXCLUDED.approved_by,
			approved_at = EXCLUDED.approved_at,
			rejected_by = EXCLUDED.rejected_by,
			rejected_at = EXCLUDED.rejected_at,
			feedback = EXCLUDED.feedback,
			disabled_by = EXCLUDED.disabled_by,
			disabled_at = EXCLUDED.disabled_at,
			disabled_reason = EXCLUDED.disabled_reason,
			updated_at = EXCLUDED.updated_at,
			version = challenges.version + 1
		RETURNING version, created_at`
	args := append(challengeArgs(challenge), challenge.ID, now)
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&challenge.Version, &challenge.CreatedAt); err != nil {
		return types.Challenge{}, err
	}
	return challenge, nil
}

func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM challenges WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
