package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/metrics"
)

// expirationSweeper is the slice of the reservation service this job drives.
type expirationSweeper interface {
	CompleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ReservationExpiryJobParams configure the end-of-rental sweep.
type ReservationExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper expirationSweeper
	Metrics *metrics.CronJobMetrics
}

// NewReservationExpiryJob builds the job that completes finished rentals and
// frees their lockers.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	sweeper expirationSweeper
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	count, err := j.sweeper.CompleteExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("complete expired reservations: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddSwept(j.Name(), count)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return nil
}
