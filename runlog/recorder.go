package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

type RunRecord struct {
	ID          string           `json:"id"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	MinSalary   int64            `json:"min_salary"`
	Status      Status           `json:"status"`
	StopReason  string           `json:"stop_reason,omitempty"`
	Error       string           `json:"error,omitempty"`
	Metrics     map[string]int64 `json:"metrics,omitempty"`
}

// Outcome is what a finished run reports back to the recorder.
type Outcome struct {
	StopReason string
	// WalkErr ended the walk early; the run still produced partial results.
	WalkErr error
	// SaveErr means persisting the results failed.
	SaveErr error
	Metrics map[string]int64
}

type Recorder struct {
	dir string
	now func() time.Time
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{
		dir: dir,
		now: time.Now,
	}
}

func (r *Recorder) Start(minSalary int64) (*RunRecord, error) {
	if r == nil {
		return nil, errors.New("runlog: recorder is nil")
	}
	if r.dir == "" {
		return nil, errors.New("runlog: directory is required")
	}

	record := &RunRecord{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		MinSalary: minSalary,
		Status:    StatusStarted,
	}
	if err := r.write(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Recorder) Finish(record *RunRecord, out Outcome) error {
	if r == nil {
		return errors.New("runlog: recorder is nil")
	}
	if record == nil {
		return errors.New("runlog: record is nil")
	}
	record.CompletedAt = r.now()
	record.StopReason = out.StopReason
	record.Metrics = out.Metrics
	record.Error = ""

	switch {
	case out.SaveErr != nil:
		record.Status = StatusFailed
		record.Error = out.SaveErr.Error()
	case out.WalkErr != nil:
		record.Status = StatusPartial
		record.Error = out.WalkErr.Error()
	default:
		record.Status = StatusCompleted
	}
	return r.write(record)
}

// Path returns the file a record is written to.
func (r *Recorder) Path(record *RunRecord) string {
	name := fmt.Sprintf("run-%s-%s.json", record.StartedAt.UTC().Format("20060102T150405Z"), record.ID[:8])
	return filepath.Join(r.dir, name)
}

func (r *Recorder) write(record *RunRecord) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(r.Path(record), append(payload, '\n'), 0o644)
}
