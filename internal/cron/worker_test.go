package cron

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andreinita/fxcache/internal/alerting"
	"github.com/andreinita/fxcache/internal/bnr"
	"github.com/andreinita/fxcache/internal/rates"
	"github.com/andreinita/fxcache/internal/storage"
)

type stubSource struct {
	snap *bnr.Snapshot
	err  error
}

func (s *stubSource) FetchLatest(ctx context.Context) (*bnr.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func newTestWorker(st *storage.MemoryStorage, src rates.Source) *worker {
	return &worker{
		svc: rates.NewService(st, src),
		st:  st,
	}
}

func TestRunJobSuccess(t *testing.T) {
	st := storage.NewMemory()
	src := &stubSource{snap: &bnr.Snapshot{
		Date:  "2024-01-15",
		Rates: map[string]float64{"RON": 1, "EUR": 5},
	}}
	w := newTestWorker(st, src)

	w.runJob(context.Background())

	stored, err := st.GetRatesByDate(context.Background(), "2024-01-15")
	if err != nil {
		t.Fatalf("read rates: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("persisted %d rows, want 2", len(stored))
	}

	job := st.GetScheduledJob(jobName)
	if job == nil {
		t.Fatal("no scheduled job row recorded")
	}
	if job.LastSuccess != 1 {
		t.Errorf("last_success = %d, want 1", job.LastSuccess)
	}
	if job.LastError != "" {
		t.Errorf("last_error = %q, want empty", job.LastError)
	}
	if job.LastRunAt.IsZero() {
		t.Error("last_run_at not set")
	}
}

func TestRunJobFailure(t *testing.T) {
	st := storage.NewMemory()
	w := newTestWorker(st, &stubSource{err: errors.New("upstream down")})

	w.runJob(context.Background())

	job := st.GetScheduledJob(jobName)
	if job == nil {
		t.Fatal("no scheduled job row recorded")
	}
	if job.LastSuccess != 0 {
		t.Errorf("last_success = %d, want 0", job.LastSuccess)
	}
	if job.LastError == "" {
		t.Error("last_error not recorded")
	}
	if w.failures != 1 {
		t.Errorf("failures = %d, want 1", w.failures)
	}
}

func TestRunJobFailureSendsAlert(t *testing.T) {
	var hits int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	st := storage.NewMemory()
	w := newTestWorker(st, &stubSource{err: errors.New("upstream down")})
	w.alerter = alerting.NewAlerter(alerting.AlertConfig{
		WebhookURL:             hook.URL,
		WebhookType:            "generic",
		Enabled:                true,
		MinFailuresBeforeAlert: 2,
		Timeout:                2 * time.Second,
	})

	// First failure is below the threshold, the second fires the webhook.
	w.runJob(context.Background())
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("webhook hit %d times before threshold, want 0", n)
	}
	w.runJob(context.Background())
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("webhook hit %d times, want 1", n)
	}

	// A success resets the counter.
	w.svc = rates.NewService(st, &stubSource{snap: &bnr.Snapshot{
		Date:  "2024-01-16",
		Rates: map[string]float64{"RON": 1},
	}})
	w.runJob(context.Background())
	if w.failures != 0 {
		t.Errorf("failures = %d after success, want 0", w.failures)
	}
}

func TestRunRunsImmediatelyAndStops(t *testing.T) {
	st := storage.NewMemory()
	src := &stubSource{snap: &bnr.Snapshot{
		Date:  "2024-01-15",
		Rates: map[string]float64{"RON": 1},
	}}
	svc := rates.NewService(st, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, svc, st, DefaultSpec) }()

	// The startup run happens before the scheduler starts; poll for its
	// bookkeeping row.
	deadline := time.After(2 * time.Second)
	for st.GetScheduledJob(jobName) == nil {
		select {
		case <-deadline:
			t.Fatal("startup refresh never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunRejectsBadSpec(t *testing.T) {
	st := storage.NewMemory()
	svc := rates.NewService(st, &stubSource{err: errors.New("unused")})

	if err := Run(context.Background(), svc, st, "not a cron spec"); err == nil {
		t.Fatal("expected error for malformed spec")
	}
}
