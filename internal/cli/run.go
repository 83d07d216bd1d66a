package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/actions"
	"github.com/raphaelgruber/memory-agent/internal/agent"
	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/config"
	"github.com/raphaelgruber/memory-agent/internal/llm"
	"github.com/raphaelgruber/memory-agent/internal/memclient"
	"github.com/raphaelgruber/memory-agent/internal/metrics"
	"github.com/raphaelgruber/memory-agent/internal/strategy"
	"github.com/spf13/cobra"
)

var (
	runBaseURL        string
	runPollInterval   float64
	runRequestTimeout float64
	runStateFile      string
	runBackfill       bool
	runICSDir         string
	runOpenBrowser    bool
	runOnce           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll for new memories and act on them",
	Long: `Poll the memory store for records created after the checkpoint and run
the matching actions for each one. Stops cleanly on SIGINT or SIGTERM after
the record in progress.

On first run the checkpoint starts at the current time, so existing
memories are ignored. Use --backfill to process the full history instead.

Examples:
  memory-agent run
  memory-agent run --base-url https://example.convex.site --poll-interval 5
  memory-agent run --backfill --once`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runBaseURL, "base-url", "", "memory store base URL (default $CONVEX_SITE_URL)")
	f.Float64Var(&runPollInterval, "poll-interval", 0, "seconds between polls when idle")
	f.Float64Var(&runRequestTimeout, "request-timeout", 0, "timeout in seconds for remote calls")
	f.StringVar(&runStateFile, "state-file", "", "checkpoint file path")
	f.BoolVar(&runBackfill, "backfill", false, "on first run, process existing memories instead of skipping them")
	f.StringVar(&runICSDir, "ics-dir", "", "directory for generated invites")
	f.BoolVar(&runOpenBrowser, "open-browser", true, "open the calendar link in a browser")
	f.BoolVar(&runOnce, "once", false, "run a single poll iteration and exit")
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("base-url") {
		cfg.BaseURL = runBaseURL
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = time.Duration(runPollInterval * float64(time.Second))
	}
	if f.Changed("request-timeout") {
		cfg.RequestTimeout = time.Duration(runRequestTimeout * float64(time.Second))
	}
	if f.Changed("state-file") {
		cfg.StateFile = runStateFile
	}
	if runBackfill {
		cfg.StartMode = checkpoint.StartReplayHistory
	}
	if f.Changed("ics-dir") {
		cfg.ICSDir = runICSDir
	}
	if f.Changed("open-browser") {
		cfg.OpenBrowser = runOpenBrowser
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)
	logger.Info("starting memory-agent", "version", Version, "config", cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller, err := buildPoller(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if runOnce {
		n, err := poller.PollOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("single poll completed", "records", n)
		return nil
	}
	return poller.Run(ctx)
}

// buildPoller wires the checkpoint, upstream client, strategies and executors.
func buildPoller(ctx context.Context, cfg config.Config, logger *slog.Logger) (*agent.Poller, error) {
	m := metrics.NewCollector()

	store := checkpoint.New(checkpoint.Options{Path: cfg.StateFile, Mode: cfg.StartMode})
	initialized, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if initialized {
		logger.Info("checkpoint initialized", "path", store.Path(), "mode", cfg.StartMode, "watermark", store.Watermark())
	}

	client := memclient.New(cfg.BaseURL, cfg.RequestTimeout, nil).WithLogger(logger)

	coachOpts := strategy.GoalCoachOptions{
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Metrics: m,
	}
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		logger.Info("goal suggestions will use the local fallback", "provider", cfg.LLMProvider, "reason", err)
		coachOpts.Unavailable = err
	} else {
		logger.Info("goal suggestions enabled", "provider", model.Provider(), "model", model.Model())
		coachOpts.Generator = model
	}

	calendar := actions.NewCalendar(actions.CalendarOptions{
		Dir:         cfg.ICSDir,
		OpenBrowser: cfg.OpenBrowser,
		Logger:      logger,
	})
	goal := actions.NewGoal(strategy.NewGoalCoach(coachOpts))

	dispatcher := agent.NewDispatcher(store, client, logger, m, calendar, goal)
	return agent.NewPoller(agent.PollerOptions{
		Source:     client,
		Dispatcher: dispatcher,
		Store:      store,
		Interval:   cfg.PollInterval,
		PageSize:   cfg.PageSize,
		Logger:     logger,
		Metrics:    m,
	}), nil
}
