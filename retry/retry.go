package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hhscan/metrics"
)

// ErrExhausted is returned by Do once every allowed attempt has failed with a
// retryable fault.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Response is what a single attempt produced.
type Response struct {
	StatusCode int
	Body       []byte
}

// Action performs one network attempt. A non-nil error means the attempt did
// not produce a response (timeout, connection failure, truncated body).
type Action func(ctx context.Context) (Response, error)

type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	BackoffFactor   float64
	RetryableStatus map[int]struct{}

	// Sleep waits between attempts. Nil means a timer honoring ctx.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

func DefaultStatusCodes() map[int]struct{} {
	return map[int]struct{}{
		http.StatusTooManyRequests:     {},
		http.StatusInternalServerError: {},
		http.StatusBadGateway:          {},
		http.StatusServiceUnavailable:  {},
		http.StatusGatewayTimeout:      {},
	}
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		BackoffFactor:   2.0,
		RetryableStatus: DefaultStatusCodes(),
	}
}

// Do runs action until it returns status 200, a status outside
// RetryableStatus, or MaxRetries retries have been spent. At most
// MaxRetries+1 attempts are made.
func (p Policy) Do(ctx context.Context, action Action) (Response, error) {
	if action == nil {
		return Response{}, errors.New("retry: action is nil")
	}
	logger := p.logger()
	maxRetries := max(0, p.MaxRetries)
	delay := p.InitialDelay

	var lastErr error
	for retries := 0; ; retries++ {
		resp, err := p.attempt(ctx, action)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Response{}, ctxErr
			}
			lastErr = err
			logger.Warn("network error", "error", err, "attempt", retries+1, "max_retries", maxRetries)
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case p.retryable(resp.StatusCode):
			lastErr = fmt.Errorf("retry: http status %d", resp.StatusCode)
			logger.Warn("retryable status", "status", resp.StatusCode, "attempt", retries+1, "max_retries", maxRetries)
		default:
			return resp, nil
		}

		if retries >= maxRetries {
			logger.Error("retries exhausted", "max_retries", maxRetries)
			return Response{}, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, retries+1, lastErr)
		}

		reason := "status"
		if err != nil {
			reason = "network"
		}
		metrics.Retries.WithLabelValues(reason).Inc()

		if err := p.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
		delay = time.Duration(float64(delay) * p.factor())
	}
}

// Delays lists the sleeps Do performs when every attempt fails.
func (p Policy) Delays() []time.Duration {
	n := max(0, p.MaxRetries)
	out := make([]time.Duration, 0, n)
	delay := p.InitialDelay
	for range n {
		out = append(out, delay)
		delay = time.Duration(float64(delay) * p.factor())
	}
	return out
}

func (p Policy) attempt(ctx context.Context, action Action) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry: action panicked: %v", r)
		}
	}()
	return action(ctx)
}

func (p Policy) retryable(statusCode int) bool {
	_, ok := p.RetryableStatus[statusCode]
	return ok
}

func (p Policy) factor() float64 {
	if p.BackoffFactor < 1 {
		return 1
	}
	return p.BackoffFactor
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SleepContext blocks for delay or until ctx is done.
func SleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
