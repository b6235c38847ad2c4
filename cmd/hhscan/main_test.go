package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"hhscan/config"
	"hhscan/crawl"
	"hhscan/model"
	"hhscan/runlog"
	"hhscan/vacancystore"
)

func TestNextRunTime(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, loc)

	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, loc), nextRunTime(now, 9, 30))
	assert.Equal(t, time.Date(2025, 3, 2, 7, 0, 0, 0, loc), nextRunTime(now, 7, 0))
	assert.Equal(t, time.Date(2025, 3, 2, 8, 0, 0, 0, loc), nextRunTime(now, 8, 0))
}

func TestRequestLimit(t *testing.T) {
	assert.Equal(t, rate.Inf, requestLimit(0))
	assert.Equal(t, rate.Inf, requestLimit(-1))
	assert.Equal(t, rate.Limit(2.5), requestLimit(2.5))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := retryPolicy(config.RetryConfig{
		MaxRetries:    5,
		InitialDelay:  250 * time.Millisecond,
		BackoffFactor: 3,
		StatusCodes:   []int{429, 503},
	}, discardLogger())

	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, policy.InitialDelay)
	assert.Equal(t, 3.0, policy.BackoffFactor)
	assert.Len(t, policy.RetryableStatus, 2)
	assert.Contains(t, policy.RetryableStatus, 503)
	assert.NotContains(t, policy.RetryableStatus, 500)
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--min-salary", "300000", "--output", "out.json"}))

	cfg := config.Default()
	cfg.Schedule.At = "06:00"
	applyFlags(cmd, &cfg, cliOptions{minSalary: 300000, output: "out.json", scheduleAt: ""})

	assert.Equal(t, int64(300000), cfg.Walk.MinSalary)
	assert.Equal(t, "out.json", cfg.Output.Path)
	assert.Equal(t, "06:00", cfg.Schedule.At)
	assert.False(t, cfg.Schedule.Enabled)
}

func TestRootCmd_ConfigErrorIsNotPrintedTwice(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.NotContains(t, out.String(), "Error:")
}

func TestRootCmd_FlagErrorIsPrinted(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--min-salary", "lots"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, out.String(), "Error:")
	assert.Contains(t, out.String(), "--min-salary")
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "info", Format: "json"}, false)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])

	buf.Reset()
	logger = newLogger(&buf, config.LoggingConfig{Level: "error", Format: "text"}, true)
	logger.Debug("debug wins")
	assert.Contains(t, buf.String(), "debug wins")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHHServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "0":
			_, _ = w.Write([]byte(`{"pages":2,"found":3,"items":[
				{"name":"Senior Go","alternate_url":"https://hh.ru/vacancy/1","salary":{"from":300000,"to":null,"currency":"RUR","gross":false}},
				{"name":"Junior","alternate_url":"https://hh.ru/vacancy/2","salary":{"from":80000,"to":120000,"currency":"RUR","gross":true}}
			]}`))
		case "1":
			_, _ = w.Write([]byte(`{"pages":2,"found":3,"items":[
				{"name":"Lead Python","alternate_url":"https://hh.ru/vacancy/3","salary":{"from":null,"to":450000,"currency":"RUR","gross":true}}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestApp(t *testing.T, baseURL string) (*app, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.API.RequestsPerSecond = 0
	cfg.Walk.PageDelay = 0
	cfg.Output.Path = filepath.Join(dir, "data", "vacancies_data.json")
	cfg.Output.RawDir = filepath.Join(dir, "raw")
	cfg.Output.RunsDir = filepath.Join(dir, "runs")
	return newApp(&cfg, discardLogger()), &cfg
}

func readRunRecord(t *testing.T, dir string) runlog.RunRecord {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var record runlog.RunRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	return record
}

func TestRunOnce_EndToEnd(t *testing.T) {
	server := newHHServer(t)
	a, cfg := newTestApp(t, server.URL)

	result, err := a.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.pages)
	assert.Equal(t, 2, result.kept)
	assert.Equal(t, crawl.StopLastPage, result.stopReason)

	saved, err := vacancystore.LoadJSON(cfg.Output.Path)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Senior Go", saved[0].Title)
	assert.Equal(t, "Lead Python", saved[1].Title)

	rawFiles, err := os.ReadDir(cfg.Output.RawDir)
	require.NoError(t, err)
	assert.Len(t, rawFiles, 1)

	record := readRunRecord(t, cfg.Output.RunsDir)
	assert.Equal(t, runlog.StatusCompleted, record.Status)
	assert.Equal(t, int64(2), record.Metrics["kept"])
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Save(context.Context, []model.Vacancy) error {
	return errors.New("disk full")
}

func TestRunOnce_SaveFailureIsReported(t *testing.T) {
	server := newHHServer(t)
	a, cfg := newTestApp(t, server.URL)
	a.openSinks = func(context.Context) (vacancystore.Sink, func()) {
		return failingSink{}, func() {}
	}

	result, err := a.runOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, result.kept)

	record := readRunRecord(t, cfg.Output.RunsDir)
	assert.Equal(t, runlog.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "disk full")
}

func TestRunOnce_NothingMatchedSkipsSave(t *testing.T) {
	server := newHHServer(t)
	a, cfg := newTestApp(t, server.URL)
	cfg.Walk.MinSalary = 1_000_000

	result, err := a.runOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.kept)
	_, statErr := os.Stat(cfg.Output.Path)
	assert.True(t, os.IsNotExist(statErr))
}
