package vacancystore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hhscan/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS vacancies (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	salary_from BIGINT,
	salary_to BIGINT,
	salary_currency TEXT,
	salary_gross BOOLEAN,
	retrieved_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vacancies_salary_from ON vacancies(salary_from);
CREATE INDEX IF NOT EXISTS idx_vacancies_salary_to ON vacancies(salary_to);
`

const upsertSQL = `
INSERT INTO vacancies (title, url, salary_from, salary_to, salary_currency, salary_gross, retrieved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	salary_from = EXCLUDED.salary_from,
	salary_to = EXCLUDED.salary_to,
	salary_currency = EXCLUDED.salary_currency,
	salary_gross = EXCLUDED.salary_gross,
	retrieved_at = EXCLUDED.retrieved_at,
	updated_at = NOW();
`

// Postgres upserts vacancies keyed by their URL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("vacancystore: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vacancystore: connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("vacancystore: ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, vacancies []model.Vacancy) error {
	rows := upsertRows(vacancies)
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertSQL, row...)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("vacancystore: upsert row %d: %w", i, err)
		}
	}
	return nil
}

// upsertRows turns vacancies into query arguments. Rows without a URL have
// no conflict key and are skipped; a URL seen twice keeps its last record.
func upsertRows(vacancies []model.Vacancy) [][]any {
	index := make(map[string]int, len(vacancies))
	rows := make([][]any, 0, len(vacancies))
	for _, v := range vacancies {
		url := strings.TrimSpace(v.URL)
		if url == "" {
			continue
		}
		row := []any{
			strings.TrimSpace(v.Title),
			url,
			v.SalaryFrom,
			v.SalaryTo,
			v.SalaryCurrency,
			v.SalaryGross,
			v.RetrievedAt,
		}
		if i, ok := index[url]; ok {
			rows[i] = row
			continue
		}
		index[url] = len(rows)
		rows = append(rows, row)
	}
	return rows
}
