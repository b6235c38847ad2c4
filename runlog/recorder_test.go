package runlog

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecord(t *testing.T, path string) RunRecord {
	t.Helper()
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	var record RunRecord
	require.NoError(t, json.Unmarshal(payload, &record))
	return record
}

func TestRecorder_StartAndFinish(t *testing.T) {
	rec := NewRecorder(t.TempDir())
	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return clock }

	record, err := rec.Start(250000)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, readRecord(t, rec.Path(record)).Status)

	clock = clock.Add(time.Minute)
	require.NoError(t, rec.Finish(record, Outcome{
		StopReason: "last_page",
		Metrics:    map[string]int64{"kept": 12},
	}))

	got := readRecord(t, rec.Path(record))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int64(250000), got.MinSalary)
	assert.Equal(t, "last_page", got.StopReason)
	assert.Equal(t, int64(12), got.Metrics["kept"])
	assert.Equal(t, clock, got.CompletedAt)
}

func TestRecorder_FinishStatuses(t *testing.T) {
	rec := NewRecorder(t.TempDir())

	partial, err := rec.Start(1)
	require.NoError(t, err)
	require.NoError(t, rec.Finish(partial, Outcome{WalkErr: errors.New("exhausted")}))
	assert.Equal(t, StatusPartial, partial.Status)

	failed, err := rec.Start(1)
	require.NoError(t, err)
	require.NoError(t, rec.Finish(failed, Outcome{WalkErr: errors.New("x"), SaveErr: errors.New("disk full")}))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "disk full", failed.Error)
}

func TestRecorder_RequiresDirectory(t *testing.T) {
	_, err := NewRecorder("").Start(1)
	require.Error(t, err)
}
