package rates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/andreinita/fxcache/internal/bnr"
	"github.com/andreinita/fxcache/internal/metrics"
	"github.com/andreinita/fxcache/internal/storage"
)

const dateLayout = "2006-01-02"

// Provenance describes how a returned snapshot was obtained.
type Provenance string

const (
	// ProvenanceLive marks a snapshot freshly fetched from the authority.
	ProvenanceLive Provenance = "live"
	// ProvenanceCache marks a snapshot found in the store for today.
	ProvenanceCache Provenance = "cache"
	// ProvenanceStale marks the newest previously cached snapshot, served
	// because the fetch failed.
	ProvenanceStale Provenance = "stale-cache"
)

var (
	// ErrNoRatesAvailable means the fetch failed and the store holds no
	// snapshot at all. It is the only terminal failure of the read path.
	ErrNoRatesAvailable = errors.New("no exchange rates available")

	// ErrRateNotFound means a requested currency code is absent from the
	// resolved rate map.
	ErrRateNotFound = errors.New("exchange rate not available")
)

// Source fetches the daily rate document from the external authority.
type Source interface {
	FetchLatest(ctx context.Context) (*bnr.Snapshot, error)
}

// LatestRates is a resolved snapshot plus its provenance. Callers must check
// Date rather than assume freshness: with stale-cache provenance it is the
// date of the stale data, not today.
type LatestRates struct {
	Rates      map[string]float64 `json:"rates"`
	Date       string             `json:"date"`
	Provenance Provenance         `json:"source"`
}

// Service coordinates the cache-first read path and scheduled refreshes.
type Service struct {
	store  storage.Storage
	source Source
	now    func() time.Time

	fetchGroup singleflight.Group
}

type Option func(*Service)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Storage, source Source, opts ...Option) *Service {
	s := &Service{
		store:  store,
		source: source,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetLatest resolves the current rate set. The chain runs in order and
// short-circuits on success: today's cached snapshot, then a live fetch
// (persisted on success), then the newest cached snapshot of any date. Each
// step runs at most once per call.
func (s *Service) GetLatest(ctx context.Context) (*LatestRates, error) {
	today := s.now().Format(dateLayout)

	cached, err := s.store.GetRatesByDate(ctx, today)
	if err != nil {
		log.Printf("rates: read cache for %s failed: %v", today, err)
	}
	if len(cached) > 0 {
		metrics.RatesServedTotal.WithLabelValues(string(ProvenanceCache)).Inc()
		return &LatestRates{Rates: cached, Date: today, Provenance: ProvenanceCache}, nil
	}

	snap, err := s.fetchAndStore(ctx, today)
	if err == nil {
		metrics.RatesServedTotal.WithLabelValues(string(ProvenanceLive)).Inc()
		return &LatestRates{Rates: snap.Rates, Date: snap.Date, Provenance: ProvenanceLive}, nil
	}
	log.Printf("rates: fetch failed, falling back to newest cached snapshot: %v", err)

	staleDate, stale, lerr := s.store.GetLatestRates(ctx)
	if lerr != nil {
		log.Printf("rates: read fallback snapshot failed: %v", lerr)
	}
	if staleDate == "" || len(stale) == 0 {
		return nil, ErrNoRatesAvailable
	}
	metrics.RatesServedTotal.WithLabelValues(string(ProvenanceStale)).Inc()
	return &LatestRates{Rates: stale, Date: staleDate, Provenance: ProvenanceStale}, nil
}

// Refresh unconditionally fetches the daily document and persists it,
// bypassing the cache-hit short circuit. Callers treat a returned error as a
// warning: the read path keeps its fallback chain either way.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.fetchAndStore(ctx, s.now().Format(dateLayout))
	return err
}

// fetchAndStore performs at most one in-flight upstream fetch per calendar
// date across concurrent callers; losers of the race share the winner's
// result. The snapshot is persisted under the date the document reports,
// which may differ from the key.
func (s *Service) fetchAndStore(ctx context.Context, today string) (*bnr.Snapshot, error) {
	v, err, _ := s.fetchGroup.Do(today, func() (interface{}, error) {
		snap, err := s.source.FetchLatest(ctx)
		if err != nil {
			metrics.FetchesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.FetchesTotal.WithLabelValues("ok").Inc()
		if err := s.store.ReplaceRates(ctx, snap.Date, snap.Rates); err != nil {
			return nil, fmt.Errorf("persist snapshot: %w", err)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bnr.Snapshot), nil
}
