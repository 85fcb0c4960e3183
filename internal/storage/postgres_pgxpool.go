package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreinita/fxcache/internal/metrics"
)

// PgxPoolStorage is a Storage backed directly by a pgx connection pool. It
// exists for deployments that want pool-level metrics and real advisory
// locks without going through GORM.
type PgxPoolStorage struct {
	pool *pgxpool.Pool
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PgxPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/fxcache?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PgxPoolStorage{pool: pool}, nil
}

func (s *PgxPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxPoolStorage) Ping(ctx context.Context) error {
	stat := s.pool.Stat()
	metrics.UpdateDBPoolMetrics("postgrespool",
		float64(stat.TotalConns()),
		float64(stat.IdleConns()),
		float64(stat.AcquiredConns()),
		uint64(stat.AcquireCount()),
	)
	return s.pool.Ping(ctx)
}

func (s *PgxPoolStorage) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchange_rates (
			currency_code TEXT NOT NULL,
			date TEXT NOT NULL,
			rate DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (currency_code, date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exchange_rates_date ON exchange_rates (date);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			name TEXT PRIMARY KEY,
			last_run_at TIMESTAMPTZ,
			last_duration_ms BIGINT,
			last_success INT,
			last_error TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Rates

func (s *PgxPoolStorage) GetRatesByDate(ctx context.Context, date string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT currency_code, rate FROM exchange_rates WHERE date = $1`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRates(rows)
}

func (s *PgxPoolStorage) GetLatestRates(ctx context.Context) (string, map[string]float64, error) {
	var maxDate *string
	if err := s.pool.QueryRow(ctx, `SELECT MAX(date) FROM exchange_rates`).Scan(&maxDate); err != nil {
		return "", nil, err
	}
	if maxDate == nil {
		return "", nil, nil
	}
	rates, err := s.GetRatesByDate(ctx, *maxDate)
	if err != nil {
		return "", nil, err
	}
	return *maxDate, rates, nil
}

func (s *PgxPoolStorage) ReplaceRates(ctx context.Context, date string, rates map[string]float64) error {
	if len(rates) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for code, rate := range rates {
		_, err := tx.Exec(ctx,
			`INSERT INTO exchange_rates (currency_code, date, rate) VALUES ($1, $2, $3)
			 ON CONFLICT (currency_code, date) DO UPDATE SET rate = EXCLUDED.rate`,
			code, date, rate)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func scanRates(rows pgx.Rows) (map[string]float64, error) {
	out := make(map[string]float64)
	for rows.Next() {
		var code string
		var rate float64
		if err := rows.Scan(&code, &rate); err != nil {
			return nil, err
		}
		out[code] = rate
	}
	return out, rows.Err()
}

// Settings

func (s *PgxPoolStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *PgxPoolStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now())
	return err
}

// Scheduled jobs & locking

func (s *PgxPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_duration_ms = EXCLUDED.last_duration_ms,
			last_success = EXCLUDED.last_success,
			last_error = EXCLUDED.last_error`,
		name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (s *PgxPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok)
	return ok, err
}

func (s *PgxPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}
