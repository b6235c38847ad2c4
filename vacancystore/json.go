package vacancystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hhscan/model"
)

const DefaultJSONPath = "data/vacancies_data.json"

// JSONFile writes vacancies as an indented JSON array. The file is replaced
// atomically so a failed save leaves the previous result intact.
type JSONFile struct {
	path string
}

func NewJSONFile(path string) *JSONFile {
	if path == "" {
		path = DefaultJSONPath
	}
	return &JSONFile{path: path}
}

func (s *JSONFile) Name() string { return "json" }

func (s *JSONFile) Save(_ context.Context, vacancies []model.Vacancy) error {
	if s == nil {
		return errors.New("vacancystore: json sink is nil")
	}
	if vacancies == nil {
		vacancies = []model.Vacancy{}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vacancystore: create dir: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vacancies); err != nil {
		return fmt.Errorf("vacancystore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("vacancystore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("vacancystore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vacancystore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("vacancystore: rename: %w", err)
	}
	return nil
}

// LoadJSON reads a file written by JSONFile.
func LoadJSON(path string) ([]model.Vacancy, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []model.Vacancy
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("vacancystore: decode %s: %w", path, err)
	}
	return out, nil
}
