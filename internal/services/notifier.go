package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hintquest/apiserver/types"
)

// Notifier delivers completion and lifecycle events to the announcement layer.
// Callers log failures; a failed notification never undoes the state change.
type Notifier interface {
	ChallengeCompleted(ctx context.Context, event types.CompletionEvent) error
	LifecycleChanged(ctx context.Context, event types.LifecycleEvent) error
}

// Publisher is the broker capability the notifier needs. *mq.MQ satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// BrokerNotifier publishes events as JSON on the message broker.
type BrokerNotifier struct {
	publisher Publisher
}

func NewBrokerNotifier(publisher Publisher) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher}
}

func (n *BrokerNotifier) ChallengeCompleted(ctx context.Context, event types.CompletionEvent) error {
	return n.publish(ctx, types.ChannelCompleted, event, map[string]string{
		"challenge_id": event.ChallengeID,
	})
}

func (n *BrokerNotifier) LifecycleChanged(ctx context.Context, event types.LifecycleEvent) error {
	return n.publish(ctx, types.ChannelLifecycle, event, map[string]string{
		"challenge_id": event.ChallengeID,
		"to":           string(event.To),
	})
}

func (n *BrokerNotifier) publish(ctx context.Context, channel string, event any, attrs map[string]string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs["content_type"] = "application/json"
	_, err = n.publisher.Publish(ctx, channel, data, attrs)
	return err
}

// LocalNotifier is used when no broker is configured. Completions are
// recorded straight into the announcement log; lifecycle events are logged.
type LocalNotifier struct {
	announcer *Announcer
	logger    *slog.Logger
}

func NewLocalNotifier(announcer *Announcer, logger *slog.Logger) *LocalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalNotifier{announcer: announcer, logger: logger}
}

func (n *LocalNotifier) ChallengeCompleted(ctx context.Context, event types.CompletionEvent) error {
	if n.announcer == nil {
		n.logger.Info("challenge completed", "user_id", event.UserID, "challenge_id", event.ChallengeID, "points", event.Points)
		return nil
	}
	_, err := n.announcer.Record(ctx, event, "")
	return err
}

func (n *LocalNotifier) LifecycleChanged(_ context.Context, event types.LifecycleEvent) error {
	n.logger.Info("challenge lifecycle changed",
		"challenge_id", event.ChallengeID,
		"from", event.From,
		"to", event.To,
		"actor", event.Actor,
	)
	return nil
}
