package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hhscan/retry"
)

const (
	maxRunRetry       = 3
	runRetryBaseDelay = 2 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

func (a *app) scheduleDaily(ctx context.Context, hour, minute int) error {
	for {
		next := nextRunTime(a.now(), hour, minute)
		a.logger.Info("next scan scheduled", "at", next.Format(time.RFC3339))
		if err := retry.SleepContext(ctx, next.Sub(a.now())); err != nil {
			return err
		}
		if err := a.runWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("scheduled scan failed", "error", err)
		}
	}
}

// runWithRetry repeats a scan whose results could not be saved, waiting a
// little longer after each failed attempt.
func (a *app) runWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= maxRunRetry; attempt++ {
		result, err := a.runOnce(ctx)
		if err == nil {
			a.logger.Info("scheduled scan finished",
				"pages", result.pages,
				"kept", result.kept,
				"stop_reason", result.stopReason,
				"elapsed", result.elapsed.Round(time.Millisecond),
			)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := runRetryBaseDelay * time.Duration(attempt)
		a.logger.Warn("scan not saved, retrying", "attempt", attempt, "delay", delay, "error", err)
		if attempt < maxRunRetry {
			if err := retry.SleepContext(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
