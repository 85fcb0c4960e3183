package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/andreinita/fxcache/internal/alerting"
	"github.com/andreinita/fxcache/internal/metrics"
	"github.com/andreinita/fxcache/internal/rates"
	"github.com/andreinita/fxcache/internal/storage"
)

const (
	jobName = "refresh_rates"

	// Advisory lock key shared by all instances for the refresh job.
	lockKey int64 = 7427

	// DefaultSpec refreshes once daily at 02:00, after the authority has
	// published the day's rates.
	DefaultSpec = "0 2 * * *"
)

// worker owns the refresh loop state: service, store, alerter, and the
// consecutive-failure count feeding the alert threshold.
type worker struct {
	svc      *rates.Service
	st       storage.Storage
	alerter  *alerting.Alerter
	failures int
}

// Run executes one refresh immediately (a failure is logged, never fatal)
// and then keeps refreshing on the given cron schedule until ctx is done.
func Run(ctx context.Context, svc *rates.Service, st storage.Storage, spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}

	w := &worker{
		svc:     svc,
		st:      st,
		alerter: alerting.NewAlerter(alerting.DefaultAlertConfig()),
	}

	w.runJob(ctx)

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { w.runJob(ctx) }); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	c.Start()
	log.Printf("cron: scheduled %s with spec %q", jobName, spec)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// runJob refreshes the rate snapshot under an advisory lock so that in a
// multi-instance deployment only one worker talks to the authority.
func (w *worker) runJob(ctx context.Context) {
	started := time.Now()

	ok, err := w.st.AcquireAdvisoryLock(ctx, lockKey)
	if err != nil {
		log.Printf("cron: acquire advisory lock failed: %v", err)
		metrics.UpdateJobMetrics(jobName, started, err)
		return
	}
	if !ok {
		log.Printf("cron: advisory lock held by another instance, skipping run")
		return
	}
	defer func() {
		if _, err := w.st.ReleaseAdvisoryLock(ctx, lockKey); err != nil {
			log.Printf("cron: release advisory lock failed: %v", err)
		}
	}()

	runErr := w.svc.Refresh(ctx)
	metrics.UpdateJobMetrics(jobName, started, runErr)

	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.st.UpdateScheduledJob(ctx, jobName, started, dur, runErr == nil, errMsg); err != nil {
		log.Printf("cron: update scheduled_jobs failed: %v", err)
	}

	if runErr != nil {
		w.failures++
		log.Printf("cron: job %s completed with error: %v (duration=%s)", jobName, runErr, dur)
		if w.alerter != nil {
			if aerr := w.alerter.SendRefreshAlert(ctx, alerting.RefreshAlert{
				JobName:             jobName,
				Error:               runErr.Error(),
				ConsecutiveFailures: w.failures,
				Duration:            dur,
				Timestamp:           started,
			}); aerr != nil {
				log.Printf("cron: send refresh alert failed: %v", aerr)
			}
		}
		return
	}

	w.failures = 0
	log.Printf("cron: job %s completed successfully (duration=%s)", jobName, dur)
}
