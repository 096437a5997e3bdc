package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hintquest/apiserver/types"
)

func TestDispatchBranches(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	withEmail := types.User{ID: 1, Email: "p@example.com"}
	noEmail := types.User{ID: 2}

	cases := []struct {
		name       string
		user       types.User
		reward     types.Reward
		issuerErr  error
		wantErr    error
		wantCalls  int
		wantRecord bool
	}{
		{"badge ok", withEmail, types.BadgeReward{ClassID: "cls", Description: "Well done"}, nil, nil, 1, true},
		{"badge missing email", noEmail, types.BadgeReward{ClassID: "cls"}, nil, ErrMissingEmail, 0, false},
		{"badge service down", withEmail, types.BadgeReward{ClassID: "cls"}, errors.New("503 from upstream"), ErrExternalService, 1, false},
		{"text ok", noEmail, types.TextReward{Body: "secret"}, nil, nil, 0, true},
		{"text empty", noEmail, types.TextReward{Body: " "}, nil, ErrValidation, 0, false},
		{"no reward", withEmail, nil, nil, ErrUnknownRewardType, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := newFakeRewards()
			issuer := &fakeIssuer{response: `{"status":"ok"}`, err: c.issuerErr}
			dispatcher := NewRewardDispatcher(repo, issuer, logger)

			challenge := types.Challenge{ID: "c-1", Name: "Riddle", Reward: c.reward}
			record, err := dispatcher.Dispatch(ctx, c.user, challenge)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("expected %v, got %v", c.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if issuer.calls != c.wantCalls {
				t.Fatalf("issuer calls=%d, want %d", issuer.calls, c.wantCalls)
			}
			if got := repo.count() == 1; got != c.wantRecord {
				t.Fatalf("recorded=%v, want %v", got, c.wantRecord)
			}
			if c.wantRecord && record.Payload == "" {
				t.Fatalf("empty payload recorded")
			}
		})
	}
}

func TestDispatchRedactsServiceErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := &fakeIssuer{err: errors.New("token sk_live_123 rejected")}
	dispatcher := NewRewardDispatcher(newFakeRewards(), issuer, logger)

	_, err := dispatcher.Dispatch(context.Background(), types.User{ID: 1, Email: "p@example.com"}, types.Challenge{
		ID:     "c-1",
		Reward: types.BadgeReward{ClassID: "cls"},
	})
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if strings.Contains(err.Error(), "sk_live") {
		t.Fatalf("internal detail leaked: %v", err)
	}
}

func TestDispatchReturnsExistingRecord(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeRewards()
	issuer := &fakeIssuer{response: "first"}
	dispatcher := NewRewardDispatcher(repo, issuer, logger)

	user := types.User{ID: 1, Email: "p@example.com"}
	challenge := types.Challenge{ID: "c-1", Reward: types.BadgeReward{ClassID: "cls"}}
	first, err := dispatcher.Dispatch(ctx, user, challenge)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	issuer.response = "second"
	again, err := dispatcher.Dispatch(ctx, user, challenge)
	if err != nil {
		t.Fatalf("again: %v", err)
	}
	if again.Payload != first.Payload || issuer.calls != 1 {
		t.Fatalf("reward was reissued: %+v calls=%d", again, issuer.calls)
	}
}
