package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/types"
)

const jobTimeout = time.Minute

// Sweeper drops expired confirmation tokens.
type Sweeper interface {
	Sweep() int
}

// IndexRebuilder reloads the approved-challenge index.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) ([]types.ChallengeSummary, error)
}

// CatalogSaver uploads the current challenge catalog.
type CatalogSaver interface {
	Save(ctx context.Context) (int, error)
}

// Jobs are the periodic tasks. Nil members are not scheduled.
type Jobs struct {
	Confirmations Sweeper
	Index         IndexRebuilder
	Catalog       CatalogSaver
}

// Scheduler runs periodic maintenance for the API server.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *slog.Logger
}

// New registers every job whose interval is positive. Call Start to run them.
func New(cfg config.SchedulerConfig, jobs Jobs, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, logger: logger}

	if jobs.Confirmations != nil && cfg.ConfirmationSweep > 0 {
		err = s.add("confirmation-sweep", cfg.ConfirmationSweep, func(context.Context) error {
			if removed := jobs.Confirmations.Sweep(); removed > 0 {
				logger.Debug("expired confirmations swept", "removed", removed)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if jobs.Index != nil && cfg.IndexRefreshInterval > 0 {
		err = s.add("index-refresh", cfg.IndexRefreshInterval, func(ctx context.Context) error {
			_, err := jobs.Index.Rebuild(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if jobs.Catalog != nil && cfg.CatalogExportInterval > 0 {
		err = s.add("catalog-export", cfg.CatalogExportInterval, func(ctx context.Context) error {
			_, err := jobs.Catalog.Save(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, run func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := run(ctx); err != nil {
				s.logger.Warn("scheduled job failed", "job", name, "error", err)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
