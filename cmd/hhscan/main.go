package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hhscan/config"
)

type cliOptions struct {
	configPath  string
	debug       bool
	minSalary   int64
	output      string
	schedule    bool
	scheduleAt  string
	metricsAddr string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions
	cmd := &cobra.Command{
		Use:           "hhscan",
		Short:         "Collect hh.ru vacancies above a salary threshold",
		Long:          `hhscan walks the hh.ru vacancy search, keeps the vacancies whose salary reaches a threshold and saves them as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	// run logs its own failures; only flag errors still need printing.
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln("Error:", err)
		c.PrintErr(c.UsageString())
		return err
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (optional)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.Int64Var(&opts.minSalary, "min-salary", 250000, "minimum salary a vacancy must reach")
	flags.StringVar(&opts.output, "output", "", "JSON output path")
	flags.BoolVar(&opts.schedule, "schedule", false, "run every day instead of once")
	flags.StringVar(&opts.scheduleAt, "schedule-at", "", "daily run time (HH:MM, local time)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address in schedule mode")
	return cmd
}

func run(cmd *cobra.Command, opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.New(tint.NewHandler(os.Stderr, nil)).Error("failed to load config", "error", err)
		return err
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		slog.New(tint.NewHandler(os.Stderr, nil)).Error("invalid flags", "error", err)
		return err
	}

	logger := newLogger(os.Stderr, cfg.Logging, opts.debug)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	if cfg.Schedule.Enabled {
		return a.serve(ctx)
	}

	result, err := a.runOnce(ctx)
	if err != nil {
		logger.Error("vacancies were not fully saved", "error", err)
	}
	logger.Info("scan finished",
		"pages", result.pages,
		"kept", result.kept,
		"stop_reason", result.stopReason,
		"elapsed", result.elapsed.Round(time.Millisecond),
	)
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts cliOptions) {
	flags := cmd.Flags()
	if flags.Changed("min-salary") {
		cfg.Walk.MinSalary = opts.minSalary
	}
	if flags.Changed("output") && opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if flags.Changed("schedule") {
		cfg.Schedule.Enabled = opts.schedule
	}
	if flags.Changed("schedule-at") {
		cfg.Schedule.At = opts.scheduleAt
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
}

func newLogger(w io.Writer, cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

func parseLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// serve runs the daily schedule and, when configured, the metrics endpoint
// until ctx is canceled.
func (a *app) serve(ctx context.Context) error {
	hour, minute, err := config.ParseClock(a.cfg.Schedule.At)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, a.cfg.MetricsAddr, a.logger)
		})
	}
	g.Go(func() error {
		return a.scheduleDaily(ctx, hour, minute)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
