package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hhscan/mapper"
)

// Config is the full runtime configuration. Values come from Default, then an
// optional YAML file, then HHSCAN_* environment variables, then command flags.
type Config struct {
	API         APIConfig      `yaml:"api"          envPrefix:"API_"`
	Retry       RetryConfig    `yaml:"retry"        envPrefix:"RETRY_"`
	Walk        WalkConfig     `yaml:"walk"         envPrefix:"WALK_"`
	Fields      FieldsConfig   `yaml:"fields"       envPrefix:"FIELDS_"`
	Output      OutputConfig   `yaml:"output"       envPrefix:"OUTPUT_"`
	Postgres    PostgresConfig `yaml:"postgres"`
	Redis       RedisConfig    `yaml:"redis"        envPrefix:"REDIS_"`
	Logging     LoggingConfig  `yaml:"logging"      envPrefix:"LOG_"`
	Schedule    ScheduleConfig `yaml:"schedule"     envPrefix:"SCHEDULE_"`
	MetricsAddr string         `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

type APIConfig struct {
	BaseURL           string        `yaml:"base_url"            env:"BASE_URL"`
	UserAgent         string        `yaml:"user_agent"          env:"USER_AGENT"`
	Text              string        `yaml:"text"                env:"TEXT"`
	Area              string        `yaml:"area"                env:"AREA"`
	PerPage           int           `yaml:"per_page"            env:"PER_PAGE"`
	OnlyWithSalary    bool          `yaml:"only_with_salary"    env:"ONLY_WITH_SALARY"`
	Timeout           time.Duration `yaml:"timeout"             env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"` // 0 = unlimited
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"    env:"MAX_RETRIES"`
	InitialDelay  time.Duration `yaml:"initial_delay"  env:"INITIAL_DELAY"`
	BackoffFactor float64       `yaml:"backoff_factor" env:"BACKOFF_FACTOR"`
	StatusCodes   []int         `yaml:"status_codes"   env:"STATUS_CODES"`
}

type WalkConfig struct {
	MinSalary int64         `yaml:"min_salary" env:"MIN_SALARY"`
	MaxPage   int           `yaml:"max_page"   env:"MAX_PAGE"`
	PageDelay time.Duration `yaml:"page_delay" env:"PAGE_DELAY"`
}

// FieldsConfig holds JMESPath expressions locating the vacancy fields inside
// one raw hh.ru item.
type FieldsConfig struct {
	Title  string `yaml:"title"  env:"TITLE"`
	URL    string `yaml:"url"    env:"URL"`
	Salary string `yaml:"salary" env:"SALARY"`
}

// Mapper returns the expressions as mapper fields.
func (f FieldsConfig) Mapper() mapper.Fields {
	return mapper.Fields{Title: f.Title, URL: f.URL, Salary: f.Salary}
}

type OutputConfig struct {
	Path    string `yaml:"path"     env:"PATH"`
	RawDir  string `yaml:"raw_dir"  env:"RAW_DIR"`  // empty disables the raw archive
	RunsDir string `yaml:"runs_dir" env:"RUNS_DIR"` // empty disables run records
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"` // empty disables the postgres sink
}

type RedisConfig struct {
	URL      string        `yaml:"url"      env:"URL"` // empty disables the redis sink
	Password string        `yaml:"password" env:"PASSWORD"`
	Key      string        `yaml:"key"      env:"KEY"`
	TTL      time.Duration `yaml:"ttl"      env:"TTL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text, json
}

type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	At      string `yaml:"at"      env:"AT"` // HH:MM local time
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:           "https://api.hh.ru",
			UserAgent:         "hhscan/0.1 (vacancy-salary-scan)",
			Text:              "python OR SQL OR fastapi",
			Area:              "1",
			PerPage:           100,
			OnlyWithSalary:    true,
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  time.Second,
			BackoffFactor: 2.0,
			StatusCodes:   []int{429, 500, 502, 503, 504},
		},
		Walk: WalkConfig{
			MinSalary: 250000,
			MaxPage:   19,
			PageDelay: 200 * time.Millisecond,
		},
		Fields: FieldsConfig{
			Title:  mapper.DefaultFields.Title,
			URL:    mapper.DefaultFields.URL,
			Salary: mapper.DefaultFields.Salary,
		},
		Output: OutputConfig{
			Path:    "data/vacancies_data.json",
			RawDir:  "data/raw",
			RunsDir: "data/runs",
		},
		Redis: RedisConfig{
			Key: "hhscan:vacancies:latest",
			TTL: 48 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Schedule: ScheduleConfig{
			At: "00:10",
		},
	}
}

// Sanitize puts values that cannot be used back to their defaults.
func (c *Config) Sanitize() {
	def := Default()
	if strings.TrimSpace(c.API.BaseURL) == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.PerPage <= 0 || c.API.PerPage > 100 {
		c.API.PerPage = def.API.PerPage
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.API.RequestsPerSecond < 0 {
		c.API.RequestsPerSecond = 0
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = def.Retry.InitialDelay
	}
	if c.Retry.BackoffFactor < 1 {
		c.Retry.BackoffFactor = def.Retry.BackoffFactor
	}
	if len(c.Retry.StatusCodes) == 0 {
		c.Retry.StatusCodes = def.Retry.StatusCodes
	}
	if c.Walk.MaxPage < 0 {
		c.Walk.MaxPage = def.Walk.MaxPage
	}
	if c.Walk.PageDelay < 0 {
		c.Walk.PageDelay = def.Walk.PageDelay
	}
	if strings.TrimSpace(c.Fields.Title) == "" {
		c.Fields.Title = def.Fields.Title
	}
	if strings.TrimSpace(c.Fields.URL) == "" {
		c.Fields.URL = def.Fields.URL
	}
	if strings.TrimSpace(c.Fields.Salary) == "" {
		c.Fields.Salary = def.Fields.Salary
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		c.Output.Path = def.Output.Path
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Walk.MinSalary < 0 {
		errs = append(errs, fmt.Errorf("walk.min_salary must not be negative, got %d", c.Walk.MinSalary))
	}
	for _, code := range c.Retry.StatusCodes {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("retry.status_codes: %d is not an http status", code))
		}
	}
	if err := c.Fields.Mapper().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fields: %w", err))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Schedule.Enabled {
		if _, _, err := ParseClock(c.Schedule.At); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseClock parses an HH:MM time of day.
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule.at: invalid format %q, want HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule.at: invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule.at: invalid minute in %q", value)
	}
	return hour, minute, nil
}
