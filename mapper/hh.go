package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"hhscan/model"
)

var ErrNotObject = errors.New("mapper: vacancy is not a json object")

// Fields holds the JMESPath expressions locating the top-level vacancy fields.
type Fields struct {
	Title  string
	URL    string
	Salary string
}

var DefaultFields = Fields{
	Title:  "name",
	URL:    "alternate_url",
	Salary: "salary",
}

func (f Fields) Validate() error {
	for _, expr := range []string{f.Title, f.URL, f.Salary} {
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("mapper: invalid field expression %q: %w", expr, err)
		}
	}
	return nil
}

func NormalizeVacancy(raw json.RawMessage, observedAt time.Time) (model.Vacancy, error) {
	return DefaultFields.Normalize(raw, observedAt)
}

// Normalize builds a Vacancy from one raw API item. Missing title or url
// become empty strings and missing salary parts become nil; only a value that
// is not an object, or a title/url/salary of the wrong type, is an error.
func (f Fields) Normalize(raw json.RawMessage, observedAt time.Time) (out model.Vacancy, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = model.Vacancy{}, fmt.Errorf("mapper: normalize panicked: %v", r)
		}
	}()
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return model.Vacancy{}, fmt.Errorf("mapper: decode vacancy: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return model.Vacancy{}, ErrNotObject
	}

	title, err := f.stringField(f.Title, doc)
	if err != nil {
		return model.Vacancy{}, err
	}
	url, err := f.stringField(f.URL, doc)
	if err != nil {
		return model.Vacancy{}, err
	}

	vacancy := model.Vacancy{
		Title:       title,
		URL:         url,
		RetrievedAt: observedAt,
	}

	salaryValue, err := jmespath.Search(f.Salary, doc)
	if err != nil {
		return model.Vacancy{}, fmt.Errorf("mapper: search %q: %w", f.Salary, err)
	}
	if salaryValue == nil {
		return vacancy, nil
	}
	salary, ok := salaryValue.(map[string]any)
	if !ok {
		return model.Vacancy{}, fmt.Errorf("mapper: salary is %T, want object", salaryValue)
	}

	vacancy.SalaryFrom = parseAmount(salary["from"])
	vacancy.SalaryTo = parseAmount(salary["to"])
	if currency, ok := salary["currency"].(string); ok {
		vacancy.SalaryCurrency = &currency
	}
	if gross, ok := salary["gross"].(bool); ok {
		vacancy.SalaryGross = &gross
	}
	return vacancy, nil
}

// NormalizeAll normalizes a page of items with DefaultFields.
func NormalizeAll(items []json.RawMessage, observedAt time.Time, logger *slog.Logger) ([]model.Vacancy, int) {
	return DefaultFields.NormalizeAll(items, observedAt, logger)
}

// NormalizeAll normalizes a page of items, skipping the ones that fail. It
// returns the survivors in input order and the number dropped.
func (f Fields) NormalizeAll(items []json.RawMessage, observedAt time.Time, logger *slog.Logger) ([]model.Vacancy, int) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := make([]model.Vacancy, 0, len(items))
	dropped := 0
	for i, item := range items {
		vacancy, err := f.Normalize(item, observedAt)
		if err != nil {
			dropped++
			logger.Warn("skipping malformed vacancy", "index", i, "error", err)
			continue
		}
		out = append(out, vacancy)
	}
	return out, dropped
}

func (f Fields) stringField(expr string, doc any) (string, error) {
	value, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", fmt.Errorf("mapper: search %q: %w", expr, err)
	}
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("mapper: %s is %T, want string", expr, value)
	}
}

// parseAmount accepts integral JSON numbers that fit in int64; anything else
// is unknown.
func parseAmount(value any) *int64 {
	number, ok := value.(json.Number)
	if !ok {
		return nil
	}
	if n, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
		return &n
	}
	f, err := number.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	n := int64(f)
	return &n
}
