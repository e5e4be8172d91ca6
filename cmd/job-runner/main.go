// Package main implements the job-runner CLI for invoking scheduled tasks
// directly, bypassing the cron HTTP endpoints.
//
// This tool is intended for local development, manual backfilling, and
// operational debugging. It constructs a scheduler.JobPayload and invokes
// the same task multiplexer the cron endpoints dispatch through.
//
// Usage:
//
//	go run ./cmd/job-runner --task=detect_season_completion
//	go run ./cmd/job-runner --task=recalculate_round_points --round-id=<uuid>
//	go run ./cmd/job-runner --task=send_round_reminders --round-id=<uuid> --dry-run
//	go run ./cmd/job-runner --list
//
// Configuration comes from the environment (or a .env file) exactly as for
// the API server. In --dry-run mode the constructed JSON payload is printed
// without executing, and email tasks run against the stub provider unless
// RESEND_API_KEY is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"tippslottet/internal/config"
	"tippslottet/internal/db"
	"tippslottet/internal/external"
	"tippslottet/internal/mailer"
	"tippslottet/internal/scheduler"
	"tippslottet/internal/scoring"
	"tippslottet/internal/types"
)

// validTasks is the exhaustive set of TaskType values the runner dispatches.
// Maintained in sync with the constants in internal/scheduler/types.go.
var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskDetectSeasonCompletion: "Complete seasons whose rounds are all finalized, snapshot the hall of fame",
	scheduler.TaskRecalculateRoundPoints: "Recompute match and dynamic points for a round (requires --round-id)",
	scheduler.TaskScoreQuestionnaire:     "Score season questionnaire answers against recorded resolutions (requires --season-id)",
	scheduler.TaskSendRoundReminders:     "Email users who have not predicted an open round (requires --round-id)",
	scheduler.TaskSendRoundSummaries:     "Email the round table after finalization (requires --round-id)",
	scheduler.TaskSendTransparencyDigest: "Email everyone's predictions once the round locks (requires --round-id)",
	scheduler.TaskArchiveEmailOperations: "Compress old email operation records out of the hot table",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., detect_season_completion)")
	roundFlag := flag.String("round-id", "", "Round id for round-scoped tasks")
	seasonFlag := flag.String("season-id", "", "Season id for season-scoped tasks")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-03-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke scheduled tasks directly, bypassing the cron endpoints.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *taskFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --task is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	taskType := scheduler.TaskType(*taskFlag)
	if _, ok := validTasks[taskType]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown task type %q\n\n", *taskFlag)
		printAvailableTasks()
		os.Exit(1)
	}

	var refTime *time.Time
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --reference-time %q: %v\n", *refTimeFlag, err)
			fmt.Fprintf(os.Stderr, "  expected RFC3339 format, e.g., 2026-03-15T02:00:00Z\n")
			os.Exit(1)
		}
		refTime = &t
	}

	payload := scheduler.JobPayload{
		Task:          taskType,
		RoundID:       *roundFlag,
		SeasonID:      *seasonFlag,
		ReferenceTime: refTime,
	}

	if *dryRunFlag {
		printPayload(payload)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: task %q failed: %v\n", payload.Task, err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

// executeTask builds the same dependency graph as the API server, minus the
// HTTP chassis, and runs one job through the task multiplexer.
func executeTask(ctx context.Context, payload scheduler.JobPayload) (scheduler.JobResult, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return scheduler.JobResult{}, fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	applog := mailer.NewSlogAdapter(logger)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return scheduler.JobResult{}, fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	users := db.NewUserRepository(pool)
	rounds := db.NewRoundRepository(pool)
	predictions := db.NewPredictionRepository(pool)
	points := db.NewPointsRepository(pool)
	emailOps := db.NewEmailOpsRepository(pool)

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

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Seasons:      seasons,
		Points:       engine,
		Mailer:       emails,
		Archiver:     emailOps,
		OpsRetention: cfg.Email.OpsRetention,
		Logger:       applog,
	})

	return runner.Run(ctx, payload)
}

func printAvailableTasks() {
	names := make([]string, 0, len(validTasks))
	for t := range validTasks {
		names = append(names, string(t))
	}
	sort.Strings(names)

	fmt.Println("Available task types:")
	for _, name := range names {
		fmt.Printf("  %-28s %s\n", name, validTasks[scheduler.TaskType(name)])
	}
}

func printPayload(payload scheduler.JobPayload) {
	out, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Println(string(out))
}
