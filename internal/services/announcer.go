package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hintquest/apiserver/internal/mq"
	"github.com/hintquest/apiserver/types"
)

// AnnouncementRepository defines persistence for the announcement audit log.
type AnnouncementRepository interface {
	Create(ctx context.Context, announcement types.Announcement) (types.Announcement, error)
	ListByUser(ctx context.Context, userID int) ([]types.Announcement, error)
}

// Announcer turns completion events into Success Announcement rows.
type Announcer struct {
	repo       AnnouncementRepository
	channelRef string
	logger     *slog.Logger
}

func NewAnnouncer(repo AnnouncementRepository, channelRef string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{repo: repo, channelRef: channelRef, logger: logger}
}

// Record appends an announcement for event. messageRef identifies the
// delivered message, when there is one.
func (a *Announcer) Record(ctx context.Context, event types.CompletionEvent, messageRef string) (types.Announcement, error) {
	announcement, err := a.repo.Create(ctx, types.Announcement{
		UserID:      event.UserID,
		ChallengeID: event.ChallengeID,
		Points:      event.Points,
		ChannelRef:  a.channelRef,
		MessageRef:  messageRef,
	})
	if err != nil {
		return types.Announcement{}, translate(err)
	}
	a.logger.Info("success announced",
		"user", event.DisplayName,
		"challenge", event.ChallengeName,
		"points", event.Points,
	)
	return announcement, nil
}

// Handle consumes one completion message from the broker.
func (a *Announcer) Handle(ctx context.Context, msg mq.Message) error {
	var event types.CompletionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads are dropped; redelivery cannot fix them.
		a.logger.Warn("dropping malformed completion event", "message_id", msg.ID, "error", err)
		return nil
	}
	_, err := a.Record(ctx, event, msg.ID)
	return err
}

func (a *Announcer) ListByUser(ctx context.Context, userID int) ([]types.Announcement, error) {
	list, err := a.repo.ListByUser(ctx, userID)
	return list, translate(err)
}
