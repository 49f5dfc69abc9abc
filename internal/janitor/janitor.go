// Package janitor runs periodic maintenance: expired session removal and
// rate limiter bucket eviction.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/obs"
)

// SessionPurger removes expired sessions of a namespace.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, ns auth.Namespace) (int64, error)
}

// BucketSweeper evicts idle rate limiter buckets.
type BucketSweeper interface {
	Sweep(idle time.Duration) int
}

// Janitor schedules maintenance jobs on a cron.
type Janitor struct {
	cron     *cron.Cron
	sessions SessionPurger
	buckets  BucketSweeper
	idle     time.Duration
	timeout  time.Duration
}

// New schedules maintenance on a cron expression (standard fields or @every descriptors).
// buckets may be nil.
func New(schedule string, sessions SessionPurger, buckets BucketSweeper, idle time.Duration) (*Janitor, error) {
	if sessions == nil {
		return nil, errors.New("janitor: session purger is required")
	}
	j := &Janitor{
		cron:     cron.New(),
		sessions: sessions,
		buckets:  buckets,
		idle:     idle,
		timeout:  time.Minute,
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if err := j.RunOnce(ctx); err != nil {
			obs.Logger().Warn("janitor run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("janitor: schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running scheduled jobs in the background.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts scheduling and waits for a running job to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one maintenance pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	var errs []error
	for _, ns := range auth.Namespaces {
		n, err := j.sessions.PurgeExpired(ctx, ns)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s sessions: %w", ns, err))
			continue
		}
		obs.RecordSessionsPurged(string(ns), n)
		if n > 0 {
			obs.Logger().Info("expired sessions purged", zap.String("namespace", string(ns)), zap.Int64("count", n))
		}
	}
	if j.buckets != nil && j.idle > 0 {
		if n := j.buckets.Sweep(j.idle); n > 0 {
			obs.Logger().Debug("rate limiter buckets evicted", zap.Int("count", n))
		}
	}
	return errors.Join(errs...)
}
