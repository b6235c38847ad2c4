package crawl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"hhscan/filter"
	"hhscan/hh"
	"hhscan/mapper"
	"hhscan/metrics"
	"hhscan/model"
	"hhscan/retry"
)

const (
	// DefaultMaxPage is the last page index requested. hh.ru serves at most
	// 2000 results per query, which is 20 pages of 100.
	DefaultMaxPage   = 19
	DefaultPageDelay = 200 * time.Millisecond
)

type PageFetcher interface {
	FetchPage(ctx context.Context, page int) hh.Outcome
}

// RawArchive receives every successfully fetched page before normalization.
type RawArchive interface {
	AppendPage(page int, items []json.RawMessage) error
}

type StopReason string

const (
	StopFetchFailed StopReason = "fetch_failed"
	StopNoItems     StopReason = "no_items"
	StopEmptyPage   StopReason = "empty_page"
	StopLastPage    StopReason = "last_page"
	StopPageCap     StopReason = "page_cap"
	StopCanceled    StopReason = "canceled"
)

type Result struct {
	Vacancies  []model.Vacancy
	Fetches    int
	Pages      int
	Normalized int
	Dropped    int
	StopReason StopReason
	// Err is the fetch failure that ended the walk, if any.
	Err error
}

type Walker struct {
	fetcher PageFetcher
	fields  mapper.Fields
	raw     RawArchive
	maxPage int
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Walker)

func WithMaxPage(page int) Option {
	return func(w *Walker) {
		if page >= 0 {
			w.maxPage = page
		}
	}
}

func WithPageDelay(delay time.Duration) Option {
	return func(w *Walker) {
		if delay >= 0 {
			w.delay = delay
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Walker) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Walker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithFields sets the expressions used to read title, url and salary from
// each raw item.
func WithFields(fields mapper.Fields) Option {
	return func(w *Walker) {
		w.fields = fields
	}
}

func WithRawArchive(raw RawArchive) Option {
	return func(w *Walker) {
		w.raw = raw
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWalker(fetcher PageFetcher, opts ...Option) *Walker {
	w := &Walker{
		fetcher: fetcher,
		fields:  mapper.DefaultFields,
		maxPage: DefaultMaxPage,
		delay:   DefaultPageDelay,
		sleep:   retry.SleepContext,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk fetches pages from 0 until the source runs dry, reports its last page,
// fails, or the page cap is reached. Whatever was accumulated before the stop
// is returned; Walk never discards collected vacancies.
func (w *Walker) Walk(ctx context.Context, minSalary int64) Result {
	started := time.Now()
	res := w.walk(ctx, minSalary)

	metrics.WalkStops.WithLabelValues(string(res.StopReason)).Inc()
	metrics.WalkDuration.Observe(time.Since(started).Seconds())
	w.logger.Info("walk finished",
		"stop_reason", res.StopReason,
		"fetches", res.Fetches,
		"pages", res.Pages,
		"normalized", res.Normalized,
		"dropped", res.Dropped,
		"kept", len(res.Vacancies),
	)
	return res
}

func (w *Walker) walk(ctx context.Context, minSalary int64) Result {
	var res Result
	for page := 0; ; page++ {
		if ctx.Err() != nil {
			res.StopReason = StopCanceled
			res.Err = ctx.Err()
			return res
		}

		out := w.fetcher.FetchPage(ctx, page)
		res.Fetches++
		if !out.OK() {
			res.StopReason = StopFetchFailed
			if ctx.Err() != nil {
				res.StopReason = StopCanceled
			}
			res.Err = out.Err
			w.logger.Warn("could not fetch page, stopping", "page", page, "outcome", out.Kind, "error", out.Err)
			return res
		}
		body := out.Page
		if body.Items == nil {
			res.StopReason = StopNoItems
			w.logger.Warn("page has no items field, stopping", "page", page)
			return res
		}
		if len(body.Items) == 0 {
			res.StopReason = StopEmptyPage
			w.logger.Info("page is empty, stopping", "page", page)
			return res
		}
		res.Pages++

		if w.raw != nil {
			if err := w.raw.AppendPage(page, body.Items); err != nil {
				w.logger.Warn("could not archive raw page", "page", page, "error", err)
			}
		}

		vacancies, dropped := w.fields.NormalizeAll(body.Items, w.now(), w.logger)
		kept := filter.BySalary(vacancies, minSalary)
		res.Vacancies = append(res.Vacancies, kept...)
		res.Normalized += len(vacancies)
		res.Dropped += dropped

		metrics.VacanciesNormalized.Add(float64(len(vacancies)))
		metrics.VacanciesDropped.Add(float64(dropped))
		metrics.VacanciesKept.Add(float64(len(kept)))
		w.logger.Debug("page processed", "page", page, "items", len(body.Items), "kept", len(kept), "dropped", dropped)

		if page >= body.Pages-1 {
			res.StopReason = StopLastPage
			w.logger.Info("reached last page", "page", page, "pages", body.Pages)
			return res
		}
		if page >= w.maxPage {
			res.StopReason = StopPageCap
			w.logger.Info("reached page cap", "page", page, "pages", body.Pages)
			return res
		}

		if err := w.sleep(ctx, w.delay); err != nil {
			res.StopReason = StopCanceled
			res.Err = err
			return res
		}
	}
}
