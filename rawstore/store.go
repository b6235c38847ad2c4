package rawstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hhscan/model"
)

const sourceHH = "hh"

// FileStore appends raw vacancies to one JSONL file per UTC day.
type FileStore struct {
	dir         string
	now         func() time.Time
	currentDate string
	file        *os.File
	writer      *bufio.Writer
	written     int
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir: dir,
		now: time.Now,
	}
}

// AppendPage archives every item of one page under the same fetch time.
func (s *FileStore) AppendPage(page int, items []json.RawMessage) error {
	fetchedAt := s.now()
	for _, item := range items {
		err := s.Append(model.RawVacancy{
			Source:    sourceHH,
			Page:      page,
			FetchedAt: fetchedAt,
			Payload:   item,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Append(raw model.RawVacancy) error {
	if s == nil {
		return errors.New("rawstore: store is nil")
	}
	if s.dir == "" {
		return errors.New("rawstore: directory is required")
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = s.now()
	}
	if !json.Valid(raw.Payload) {
		return fmt.Errorf("rawstore: payload for page %d is not valid json", raw.Page)
	}

	if err := s.ensureWriter(raw.FetchedAt.UTC().Format("20060102")); err != nil {
		return err
	}
	line, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("rawstore: write: %w", err)
	}
	s.written++
	return nil
}

// Written reports how many records were appended since the store was created.
func (s *FileStore) Written() int {
	if s == nil {
		return 0
	}
	return s.written
}

func (s *FileStore) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.writer != nil {
		errs = append(errs, s.writer.Flush())
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	s.writer = nil
	s.file = nil
	s.currentDate = ""
	return errors.Join(errs...)
}

func (s *FileStore) ensureWriter(dateKey string) error {
	if s.writer != nil && s.currentDate == dateKey {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("raw-%s.jsonl", dateKey))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.file = file
	s.writer = bufio.NewWriterSize(file, 64*1024)
	s.currentDate = dateKey
	return nil
}
