package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hintquest/apiserver/types"
)

// AnnouncementRepository stores the audit log of public success messages.
type AnnouncementRepository struct {
	db *sql.DB
}

func NewAnnouncementRepository(db *sql.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

func (r *AnnouncementRepository) Create(ctx context.Context, announcement types.Announcement) (types.Announcement, error) {
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO announcements (user_id, challenge_id, points, channel_ref, message_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		announcement.UserID,
		announcement.ChallengeID,
		announcement.Points,
		announcement.ChannelRef,
		announcement.MessageRef,
		announcement.CreatedAt,
	).Scan(&announcement.ID); err != nil {
		return types.Announcement{}, err
	}
	return announcement, nil
}

func (r *AnnouncementRepository) ListByUser(ctx context.Context, userID int) ([]types.Announcement, error) {
	const query = `
		SELECT id, user_id, challenge_id, points, channel_ref, message_ref, created_at
		FROM announcements
		WHERE user_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]types.Announcement, 0)
	for rows.Next() {
		var a types.Announcement
		if err := rows.Scan(&a.ID, &a.UserID, &a.ChallengeID, &a.Points, &a.ChannelRef, &a.MessageRef, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
