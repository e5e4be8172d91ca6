// Package main is the entry point for the TippSlottet API server.
//
// It loads configuration, connects the Postgres pool, wires the repositories,
// email pipeline, scoring engine, and job runner, builds the HTTP server with
// the core chassis (middleware, routing, health checks), and listens until a
// shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"tippslottet/internal/api/handlers"
	"tippslottet/internal/config"
	"tippslottet/internal/core"
	"tippslottet/internal/db"
	"tippslottet/internal/external"
	"tippslottet/internal/mailer"
	"tippslottet/internal/monitoring"
	"tippslottet/internal/scheduler"
	"tippslottet/internal/scoring"
	"tippslottet/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	applog := mailer.NewSlogAdapter(logger)

	logger.Info("tippslottet API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	users := db.NewUserRepository(pool)
	rounds := db.NewRoundRepository(pool)
	predictions := db.NewPredictionRepository(pool)
	points := db.NewPointsRepository(pool)
	emailOps := db.NewEmailOpsRepository(pool)
	audit := db.NewAuditRepository(pool)

	// Outbound email pipeline. The limiter paces every provider call and the
	// log service threads one correlation id through the process lifetime.
	limiter := mailer.NewLimiter(mailer.WithMinDelay(cfg.Email.MinDelay))
	emailLogs := mailer.NewLogService(logger, "")

	var provider types.EmailProvider
	if cfg.Email.ProviderConfigured() {
		provider = external.NewResendClient(
			&http.Client{Timeout: 30 * time.Second},
			external.ResendClientConfig{
				APIKey: cfg.Email.ResendAPIKey.Unmask(),
				Logger: logger,
			},
		)
	} else {
		logger.Warn("RESEND_API_KEY not configured, outbound email uses the stub provider")
		provider = external.NewStubEmailProvider(logger)
	}

	emails := scheduler.NewEmailService(scheduler.EmailServiceConfig{
		Limiter:     limiter,
		Logs:        emailLogs,
		Provider:    provider,
		Recipients:  db.NewRecipientDirectory(users, predictions),
		Rounds:      rounds,
		Standings:   points,
		Predictions: predictions,
		Ops:         emailOps,
		From:        cfg.Email.From(),
		ReplyTo:     cfg.Email.ReplyTo,
	})

	seasons := scheduler.NewSeasonService(rounds, points, emails, applog)
	engine := scoring.NewEngine(rounds, predictions, points, applog, types.RealClock{})

	jobs := scheduler.NewRunner(scheduler.RunnerConfig{
		Seasons:      seasons,
		Points:       engine,
		Mailer:       emails,
		Archiver:     emailOps,
		OpsRetention: cfg.Email.OpsRetention,
		Logger:       applog,
	})

	dashboard := monitoring.NewDashboard(emailOps, limiter, applog)

	srv, err := core.NewServer(cfg, logger, users)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})

	predictionHandler := handlers.NewPredictionHandler(users, rounds, predictions, srv.Validator, logger, nil)
	roundHandler := handlers.NewRoundHandler(rounds, points, predictions, logger)
	adminHandler := handlers.NewAdminHandler(users, rounds, audit, jobs, srv.Validator, logger, nil)
	cronHandler := handlers.NewCronHandler(jobs, logger)
	emailOpsHandler := handlers.NewEmailOpsHandler(dashboard, emailLogs)

	srv.MountRoutes(core.RouteSet{
		Public: roundHandler.RegisterRoutes,
		User:   predictionHandler.RegisterRoutes,
		Admin: func(r chi.Router) {
			adminHandler.RegisterRoutes(r)
			emailOpsHandler.RegisterRoutes(r)
		},
		Cron: cronHandler.RegisterRoutes,
	})

	return srv.Serve(ctx)
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
