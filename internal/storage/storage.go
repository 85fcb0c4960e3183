package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for daily exchange-rate snapshots, settings
// and scheduled-job bookkeeping.
type Storage interface {
	// GetRatesByDate returns every rate stored for the given calendar date
	// (YYYY-MM-DD). An empty map means no snapshot exists for that date.
	GetRatesByDate(ctx context.Context, date string) (map[string]float64, error)

	// GetLatestRates returns the snapshot with the maximum date present,
	// along with that date. An empty date means the store holds nothing.
	GetLatestRates(ctx context.Context) (string, map[string]float64, error)

	// ReplaceRates persists a full snapshot for one date. The write is
	// all-or-nothing: either every row lands or none does. Rows already
	// present for the date are overwritten.
	ReplaceRates(ctx context.Context, date string, rates map[string]float64) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// UpdateScheduledJob records bookkeeping for a background job run.
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	// AcquireAdvisoryLock / ReleaseAdvisoryLock guard jobs that must run on
	// a single instance. Backends without advisory locks always report
	// success (single-instance deployments).
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
