package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	electionengine "electsys/contexts/enrollment/election-engine"
	"electsys/contexts/enrollment/election-engine/adapters/memory"
	postgresadapter "electsys/contexts/enrollment/election-engine/adapters/postgres"
	workerapp "electsys/contexts/enrollment/election-engine/application/workers"
	"electsys/contexts/enrollment/election-engine/ports"
	"electsys/internal/platform/config"
	"electsys/internal/platform/db"
	"electsys/internal/platform/httpserver"
	"electsys/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type BallotApp struct {
	postgres     *db.Postgres
	ballot       workerapp.BallotRunner
	outboxRelay  workerapp.OutboxRelay
	bus          *messaging.Bus
	gate         ports.PhaseGate
	runAt        time.Time
	relayEnabled bool
	timerEnabled bool
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(); err != nil {
		_ = pg.Close()
		return nil, err
	}
	if err := repo.EnsurePhase(context.Background(), cfg.ElectionPhaseOpen); err != nil {
		_ = pg.Close()
		return nil, err
	}

	locks, err := provisionLocks(context.Background(), repo)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	module := electionengine.NewModule(electionengine.Dependencies{
		Elections: repo,
		Courses:   repo,
		Students:  repo,
		Messages:  repo,
		Locks:     locks,
		Outbox:    repo,
		Clock:     postgresadapter.SystemClock{},
		IDGen:     postgresadapter.UUIDGenerator{},
		Logger:    logger,
	})

	// The repository doubles as the phase gate: both processes read and flip
	// the same database row, so a close in the ballot worker fences this API.
	server := httpserver.New(module, repo, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildBallotWorker() (*BallotApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "ballot")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.EnsurePhase(context.Background(), cfg.ElectionPhaseOpen); err != nil {
		_ = pg.Close()
		return nil, err
	}
	bus := messaging.NewBus(logger)

	return &BallotApp{
		postgres: pg,
		ballot: workerapp.BallotRunner{
			Elections: repo,
			Courses:   repo,
			Students:  repo,
			Messages:  repo,
			Outbox:    repo,
			Clock:     postgresadapter.SystemClock{},
			IDGen:     postgresadapter.UUIDGenerator{},
			Logger:    logger,
		},
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		bus:          bus,
		gate:         repo,
		runAt:        cfg.BallotRunAt,
		relayEnabled: cfg.EnableOutboxRelay,
		timerEnabled: cfg.EnableBallotTimer,
		pollInterval: cfg.RelayPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run arms a one-shot timer for the scheduled ballot and relays outbox rows
// until the context is canceled. With the timer disabled or no run time
// configured it only relays.
func (b *BallotApp) Run(ctx context.Context) error {
	if err := b.bus.Subscribe(ctx, "ballot.completed", "election-ballot-cg",
		func(_ context.Context, event ports.EventEnvelope) error {
			b.logger.Info("ballot completion observed",
				"event", "ballot_completed_observed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"event_id", event.EventID,
			)
			return nil
		}); err != nil {
		return err
	}

	var ballotFired <-chan time.Time
	if b.timerEnabled && !b.runAt.IsZero() {
		wait := time.Until(b.runAt)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		ballotFired = timer.C

		b.logger.Info("ballot timer armed",
			"event", "ballot_timer_armed",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"run_at", b.runAt.Format(time.RFC3339),
		)
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.logger.Info("ballot app started",
		"event", "bootstrap_ballot_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", b.pollInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ballotFired:
			// Closing the shared phase row fences interactive mutations in the
			// API process before any record is marked.
			if err := b.gate.ClosePhase(ctx); err != nil {
				return err
			}
			if err := b.ballot.RunOnce(ctx); err != nil {
				return err
			}
			ballotFired = nil
		case <-ticker.C:
			if !b.relayEnabled {
				continue
			}
			if err := b.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (b *BallotApp) Close() error {
	if b.postgres != nil {
		return b.postgres.Close()
	}
	return nil
}

// provisionLocks registers a mutex for every known student so concurrent
// requests for the same student serialize from the first call on.
func provisionLocks(ctx context.Context, repo *postgresadapter.Repository) (*memory.LockRegistry, error) {
	locks := memory.NewLockRegistry()
	studentIDs, err := repo.ListStudentIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, studentID := range studentIDs {
		locks.Provision(studentID)
	}
	return locks, nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
