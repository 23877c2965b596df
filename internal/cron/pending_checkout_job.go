package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/metrics"
)

const defaultPendingTTL = 30 * time.Minute

// pendingSweeper expires reservations whose checkout was never completed.
type pendingSweeper interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingCheckoutJobParams configure the abandoned-checkout sweep.
type PendingCheckoutJobParams struct {
	Logger     *logger.Logger
	Sweeper    pendingSweeper
	Metrics    *metrics.CronJobMetrics
	PendingTTL time.Duration
}

// NewPendingCheckoutJob builds the job that expires reservations stuck in
// pending after their checkout window lapsed. A pending reservation never
// holds a locker, so nothing needs releasing here.
func NewPendingCheckoutJob(params PendingCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &pendingCheckoutJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type pendingCheckoutJob struct {
	logg    *logger.Logger
	sweeper pendingSweeper
	metrics *metrics.CronJobMetrics
	ttl     time.Duration
	now     func() time.Time
}

func (j *pendingCheckoutJob) Name() string { return "pending-checkout" }

func (j *pendingCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	count, err := j.sweeper.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale pending reservations: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddSwept(j.Name(), int(count))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "pending checkout sweep complete")
	return nil
}
