package vacancystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hhscan/metrics"
	"hhscan/model"
)

// Sink persists the final, ordered result of a walk.
type Sink interface {
	Name() string
	Save(ctx context.Context, vacancies []model.Vacancy) error
}

// Multi saves to every sink in order. A failing sink is logged and does not
// prevent the others from running; the joined error is returned.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Save(ctx context.Context, vacancies []model.Vacancy) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Save(ctx, vacancies); err != nil {
			metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			m.logger.Error("could not save vacancies", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		m.logger.Info("vacancies saved", "sink", sink.Name(), "count", len(vacancies))
	}
	return errors.Join(errs...)
}
