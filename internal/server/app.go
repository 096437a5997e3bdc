package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/internal/cache"
	"github.com/hintquest/apiserver/internal/credential"
	"github.com/hintquest/apiserver/internal/db"
	"github.com/hintquest/apiserver/internal/mq"
	"github.com/hintquest/apiserver/internal/scoring"
	"github.com/hintquest/apiserver/internal/services"
	"github.com/hintquest/apiserver/internal/storage"
	"github.com/hintquest/apiserver/internal/store"
)

// App holds the connected infrastructure and the services built on it.
// The HTTP server and the CLI commands share it.
type App struct {
	DB      *sql.DB
	Cache   *cache.Cache
	Broker  *mq.MQ
	Objects *storage.Storage

	Users         *services.UserService
	Challenges    *services.ChallengeService
	Approvals     *services.ApprovalService
	Progress      *services.ProgressService
	Rewards       *services.RewardDispatcher
	Gameplay      *services.GameplayService
	Index         *services.ChallengeIndex
	Confirmations *services.Confirmations
	Catalog       *services.Catalog
	Announcer     *services.Announcer

	logger *slog.Logger
}

// NewApp connects every configured backend and wires the services.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	calc, err := scoring.New(scoring.Config{
		StartingPoints:      cfg.Points.StartingPoints,
		HintBasePenalty:     cfg.Points.HintBasePenalty,
		HintPenaltyIncrease: cfg.Points.HintPenaltyIncrease,
	})
	if err != nil {
		return nil, fmt.Errorf("points config: %w", err)
	}

	app := &App{logger: logger}
	if app.DB, err = db.Open(ctx, cfg); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if app.Cache, err = cache.NewFromConfig(ctx, cfg.Redis); err != nil {
		app.Close()
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	if app.Broker, err = mq.NewFromConfig(ctx, cfg.MQ); err != nil {
		app.Close()
		return nil, err
	}
	if app.Objects, err = storage.NewFromConfig(ctx, cfg.Storage); err != nil {
		app.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(app.DB)
	challengeRepo := store.NewChallengeRepository(app.DB)
	progressRepo := store.NewProgressRepository(app.DB)
	rewardRepo := store.NewRewardRepository(app.DB)
	announcementRepo := store.NewAnnouncementRepository(app.DB)

	app.Announcer = services.NewAnnouncer(announcementRepo, cfg.Announcer.ChannelRef, logger)
	var notifier services.Notifier = services.NewLocalNotifier(app.Announcer, logger)
	if app.Broker != nil {
		notifier = services.NewBrokerNotifier(app.Broker)
	}

	app.Index = services.NewChallengeIndex(challengeRepo, app.Cache, cfg.Redis.IndexTTL, logger)
	app.Users = services.NewUserService(userRepo, cfg.Auth.AdminExternalIDs, logger)
	app.Approvals = services.NewApprovalService(challengeRepo, app.Index, notifier, logger)
	app.Challenges = services.NewChallengeService(challengeRepo, app.Approvals, app.Index, logger)
	app.Progress = services.NewProgressService(progressRepo, logger)
	app.Rewards = services.NewRewardDispatcher(rewardRepo, credential.NewClient(cfg.Credential), logger)
	app.Gameplay = services.NewGameplayService(app.Users, app.Challenges, app.Progress, app.Rewards, calc, notifier, logger)
	app.Confirmations = services.NewConfirmations(cfg.ConfirmationTTL, logger)

	var objects services.ObjectStore
	if app.Objects != nil {
		objects = app.Objects
	}
	app.Catalog = services.NewCatalog(challengeRepo, app.Index, objects, cfg.Storage.DefinitionsKey, logger)
	return app, nil
}

// Close releases every connected backend.
func (a *App) Close() error {
	var errs []error
	if a.Objects != nil {
		errs = append(errs, a.Objects.Close())
	}
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
