package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"hhscan/aggregate"
	"hhscan/config"
	"hhscan/crawl"
	"hhscan/hh"
	"hhscan/model"
	"hhscan/rawstore"
	"hhscan/retry"
	"hhscan/runlog"
	"hhscan/vacancystore"
)

const sampleSize = 5

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
	// openSinks is replaceable so tests can run without postgres or redis.
	openSinks func(ctx context.Context) (vacancystore.Sink, func())
}

type runResult struct {
	pages      int
	fetches    int
	kept       int
	dropped    int
	stopReason crawl.StopReason
	elapsed    time.Duration
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	a := &app{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	a.openSinks = a.defaultSinks
	return a
}

// runOnce performs one full scan: walk the search results, summarize them,
// persist them and write a run record. Only a persistence failure is
// returned as an error; a walk that stopped early still saves what it got.
func (a *app) runOnce(ctx context.Context) (runResult, error) {
	started := a.now()
	minSalary := a.cfg.Walk.MinSalary
	a.logger.Info("starting vacancy scan",
		"text", a.cfg.API.Text,
		"area", a.cfg.API.Area,
		"min_salary", minSalary,
	)

	var (
		recorder *runlog.Recorder
		record   *runlog.RunRecord
	)
	if a.cfg.Output.RunsDir != "" {
		recorder = runlog.NewRecorder(a.cfg.Output.RunsDir)
		rec, err := recorder.Start(minSalary)
		if err != nil {
			a.logger.Warn("run record unavailable", "error", err)
			recorder = nil
		} else {
			record = rec
		}
	}

	walkOpts := []crawl.Option{
		crawl.WithMaxPage(a.cfg.Walk.MaxPage),
		crawl.WithPageDelay(a.cfg.Walk.PageDelay),
		crawl.WithFields(a.cfg.Fields.Mapper()),
		crawl.WithClock(a.now),
		crawl.WithLogger(a.logger.With("component", "crawl")),
	}
	if a.cfg.Output.RawDir != "" {
		raw := rawstore.NewFileStore(a.cfg.Output.RawDir)
		defer func() {
			if err := raw.Close(); err != nil {
				a.logger.Warn("closing raw archive failed", "error", err)
			}
			a.logger.Debug("raw items archived", "count", raw.Written(), "dir", a.cfg.Output.RawDir)
		}()
		walkOpts = append(walkOpts, crawl.WithRawArchive(raw))
	}

	walk := crawl.NewWalker(a.newClient(), walkOpts...).Walk(ctx, minSalary)
	if walk.Err != nil {
		a.logger.Warn("walk stopped early, keeping partial results",
			"stop_reason", walk.StopReason,
			"pages", walk.Pages,
			"error", walk.Err,
		)
	}

	a.logSummary(walk.Vacancies)

	var saveErr error
	if len(walk.Vacancies) == 0 {
		a.logger.Warn("no vacancies matched, leaving previous output untouched", "min_salary", minSalary)
	} else {
		sink, closeSinks := a.openSinks(ctx)
		saveErr = sink.Save(ctx, walk.Vacancies)
		closeSinks()
		if saveErr == nil {
			a.logger.Info("vacancies saved", "count", len(walk.Vacancies), "path", a.cfg.Output.Path)
		}
	}

	if recorder != nil {
		err := recorder.Finish(record, runlog.Outcome{
			StopReason: string(walk.StopReason),
			WalkErr:    walk.Err,
			SaveErr:    saveErr,
			Metrics: map[string]int64{
				"pages":      int64(walk.Pages),
				"fetches":    int64(walk.Fetches),
				"normalized": int64(walk.Normalized),
				"dropped":    int64(walk.Dropped),
				"kept":       int64(len(walk.Vacancies)),
			},
		})
		if err != nil {
			a.logger.Warn("writing run record failed", "error", err)
		}
	}

	return runResult{
		pages:      walk.Pages,
		fetches:    walk.Fetches,
		kept:       len(walk.Vacancies),
		dropped:    walk.Dropped,
		stopReason: walk.StopReason,
		elapsed:    a.now().Sub(started),
	}, saveErr
}

func (a *app) newClient() *hh.Client {
	return hh.NewClient(
		hh.WithBaseURL(a.cfg.API.BaseURL),
		hh.WithUserAgent(a.cfg.API.UserAgent),
		hh.WithTimeout(a.cfg.API.Timeout),
		hh.WithRequestRate(requestLimit(a.cfg.API.RequestsPerSecond), 1),
		hh.WithRetryPolicy(retryPolicy(a.cfg.Retry, a.logger)),
		hh.WithSearch(hh.SearchParams{
			Text:           a.cfg.API.Text,
			Area:           a.cfg.API.Area,
			PerPage:        a.cfg.API.PerPage,
			OnlyWithSalary: a.cfg.API.OnlyWithSalary,
		}),
		hh.WithLogger(a.logger.With("component", "hh")),
	)
}

func retryPolicy(cfg config.RetryConfig, logger *slog.Logger) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.InitialDelay = cfg.InitialDelay
	policy.BackoffFactor = cfg.BackoffFactor
	if len(cfg.StatusCodes) > 0 {
		policy.RetryableStatus = make(map[int]struct{}, len(cfg.StatusCodes))
		for _, code := range cfg.StatusCodes {
			policy.RetryableStatus[code] = struct{}{}
		}
	}
	policy.Logger = logger.With("component", "retry")
	return policy
}

func requestLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func (a *app) defaultSinks(ctx context.Context) (vacancystore.Sink, func()) {
	sinks := []vacancystore.Sink{vacancystore.NewJSONFile(a.cfg.Output.Path)}
	var closers []func()

	if a.cfg.Postgres.URL != "" {
		pg, err := vacancystore.NewPostgres(ctx, a.cfg.Postgres.URL)
		if err != nil {
			a.logger.Error("postgres sink disabled", "error", err)
		} else if err := pg.EnsureSchema(ctx); err != nil {
			a.logger.Error("postgres sink disabled", "error", err)
			pg.Close()
		} else {
			sinks = append(sinks, pg)
			closers = append(closers, pg.Close)
		}
	}

	if a.cfg.Redis.URL != "" {
		rdb, err := vacancystore.NewRedis(ctx, vacancystore.RedisConfig{
			URL:      a.cfg.Redis.URL,
			Password: a.cfg.Redis.Password,
			Key:      a.cfg.Redis.Key,
			TTL:      a.cfg.Redis.TTL,
		})
		if err != nil {
			a.logger.Error("redis sink disabled", "error", err)
		} else {
			sinks = append(sinks, rdb)
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}

	return vacancystore.NewMulti(a.logger.With("component", "store"), sinks...), func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func (a *app) logSummary(vacancies []model.Vacancy) {
	a.logger.Info("vacancies above threshold", "count", len(vacancies))
	for i, v := range vacancies {
		if i == sampleSize {
			break
		}
		a.logger.Info("sample",
			"n", i+1,
			"title", v.Title,
			"salary_from", amount(v.SalaryFrom),
			"salary_to", amount(v.SalaryTo),
			"currency", v.Currency(),
			"url", v.URL,
		)
	}

	agg := aggregate.NewCurrencyAggregator()
	agg.AddAll(vacancies)
	for _, s := range agg.Results() {
		a.logger.Debug("currency summary",
			"currency", s.Currency,
			"vacancies", s.Vacancies,
			"gross", s.Gross,
			"max_mentioned", s.MaxMentioned,
		)
	}
}

func amount(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
