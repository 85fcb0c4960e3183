package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu       sync.RWMutex
	rates    map[string]map[string]float64 // date -> currency -> rate
	settings map[string]string
	jobs     map[string]ScheduledJob
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		rates:    make(map[string]map[string]float64),
		settings: make(map[string]string),
		jobs:     make(map[string]ScheduledJob),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) GetRatesByDate(ctx context.Context, date string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRates(m.rates[date]), nil
}

func (m *MemoryStorage) GetLatestRates(ctx context.Context) (string, map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var maxDate string
	for date := range m.rates {
		if date > maxDate {
			maxDate = date
		}
	}
	if maxDate == "" {
		return "", nil, nil
	}
	return maxDate, copyRates(m.rates[maxDate]), nil
}

func (m *MemoryStorage) ReplaceRates(ctx context.Context, date string, rates map[string]float64) error {
	if len(rates) == 0 {
		return nil
	}
	// Copy-then-swap keeps the snapshot whole even with concurrent writers.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[date] = copyRates(rates)
	return nil
}

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

// GetScheduledJob returns the bookkeeping row for a job, or nil when the job
// has never run.
func (m *MemoryStorage) GetScheduledJob(name string) *ScheduledJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[name]
	if !ok {
		return nil
	}
	cp := job
	return &cp
}

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func copyRates(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for code, rate := range in {
		out[code] = rate
	}
	return out
}
