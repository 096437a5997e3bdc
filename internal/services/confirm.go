package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultConfirmationTTL = 60 * time.Second

// PendingOperation is the deferred mutation a confirmation commits.
type PendingOperation func(ctx context.Context) (any, error)

// Confirmation is the handle returned to the caller of a destructive action.
type Confirmation struct {
	Token     string    `json:"token"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expires_at"`
}

type pendingConfirmation struct {
	Confirmation
	actorID int
	op      PendingOperation
}

// Confirmations holds short-lived pending operations keyed by token.
// Nothing runs until Confirm; an expired or cancelled token commits nothing.
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]pendingConfirmation
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewConfirmations(ttl time.Duration, logger *slog.Logger) *Confirmations {
	if ttl <= 0 {
		ttl = defaultConfirmationTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Confirmations{
		pending: make(map[string]pendingConfirmation),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Begin registers op on behalf of actorID and returns its token.
func (c *Confirmations) Begin(actorID int, action string, op PendingOperation) Confirmation {
	confirmation := Confirmation{
		Token:     uuid.NewString(),
		Action:    action,
		ExpiresAt: c.now().Add(c.ttl),
	}
	c.mu.Lock()
	c.pending[confirmation.Token] = pendingConfirmation{
		Confirmation: confirmation,
		actorID:      actorID,
		op:           op,
	}
	c.mu.Unlock()
	return confirmation
}

// Confirm runs the operation behind token. A token is usable once.
func (c *Confirmations) Confirm(ctx context.Context, actorID int, token string) (any, error) {
	entry, err := c.take(actorID, token)
	if err != nil {
		return nil, err
	}
	c.logger.Info("confirmation accepted", "action", entry.Action, "actor_id", actorID)
	return entry.op(ctx)
}

// Cancel discards the operation behind token.
func (c *Confirmations) Cancel(actorID int, token string) error {
	_, err := c.take(actorID, token)
	if err == ErrConfirmationExpired {
		return nil
	}
	return err
}

// Sweep drops expired tokens and returns how many were removed.
func (c *Confirmations) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for token, entry := range c.pending {
		if !now.Before(entry.ExpiresAt) {
			delete(c.pending, token)
			removed++
		}
	}
	return removed
}

// Pending returns the number of live tokens.
func (c *Confirmations) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Confirmations) take(actorID int, token string) (pendingConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pending[token]
	if !ok {
		return pendingConfirmation{}, ErrNotFound
	}
	if entry.actorID != actorID {
		return pendingConfirmation{}, ErrPermissionDenied
	}
	delete(c.pending, token)
	if !c.now().Before(entry.ExpiresAt) {
		return pendingConfirmation{}, ErrConfirmationExpired
	}
	return entry, nil
}
