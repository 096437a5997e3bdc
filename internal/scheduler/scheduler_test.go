package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/types"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 0
}

type stubIndex struct{}

func (stubIndex) Rebuild(context.Context) ([]types.ChallengeSummary, error) { return nil, nil }

func TestNewRegistersConfiguredJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(config.SchedulerConfig{
		ConfirmationSweep:    time.Minute,
		IndexRefreshInterval: time.Minute,
	}, Jobs{Confirmations: &countingSweeper{}, Index: stubIndex{}}, logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Shutdown()

	names := s.Jobs()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "confirmation-sweep" || names[1] != "index-refresh" {
		t.Fatalf("unexpected jobs %v", names)
	}
}

func TestSweepRuns(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := New(config.SchedulerConfig{ConfirmationSweep: 20 * time.Millisecond},
		Jobs{Confirmations: sweeper}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
