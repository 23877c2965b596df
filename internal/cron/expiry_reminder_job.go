package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
	"github.com/casierlabs/casier-backend/pkg/metrics"
)

const defaultReminderLookahead = 15 * time.Minute

// reminderSource lists rentals that need an end-of-rental reminder and flags
// the ones already notified.
type reminderSource interface {
	DueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]models.Reservation, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

// ExpiryReminderJobParams configure the reminder sweep.
type ExpiryReminderJobParams struct {
	Logger    *logger.Logger
	Source    reminderSource
	Mailer    mail.Sender
	Metrics   *metrics.CronJobMetrics
	Lookahead time.Duration
}

// NewExpiryReminderJob builds the job that warns users shortly before their
// rental window closes.
func NewExpiryReminderJob(params ExpiryReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	lookahead := params.Lookahead
	if lookahead <= 0 {
		lookahead = defaultReminderLookahead
	}
	return &expiryReminderJob{
		logg:      params.Logger,
		source:    params.Source,
		mailer:    params.Mailer,
		metrics:   params.Metrics,
		lookahead: lookahead,
		now:       time.Now,
	}, nil
}

type expiryReminderJob struct {
	logg      *logger.Logger
	source    reminderSource
	mailer    mail.Sender
	metrics   *metrics.CronJobMetrics
	lookahead time.Duration
	now       func() time.Time
}

func (j *expiryReminderJob) Name() string { return "expiry-reminder" }

func (j *expiryReminderJob) Run(ctx context.Context) error {
	due, err := j.source.DueReminders(ctx, j.now().UTC(), j.lookahead)
	if err != nil {
		return fmt.Errorf("query due reminders: %w", err)
	}

	var errs []error
	sent := 0
	for _, reservation := range due {
		if err := j.remind(ctx, reservation); err != nil {
			errs = append(errs, fmt.Errorf("reservation %s: %w", reservation.ID, err))
			continue
		}
		sent++
	}
	if j.metrics != nil {
		j.metrics.AddSwept(j.Name(), sent)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(due), "sent": sent})
	j.logg.Info(logCtx, "expiry reminder sweep complete")
	return multierr.Combine(errs...)
}

func (j *expiryReminderJob) remind(ctx context.Context, reservation models.Reservation) error {
	if reservation.User == nil || reservation.Locker == nil {
		return fmt.Errorf("reminder row missing user or locker")
	}
	msg, err := mail.RenderExpiryReminder(reservation.User.Email, mail.ReservationEmailData{
		FirstName:    reservation.User.FirstName,
		LockerNumber: reservation.Locker.Number,
		StartDate:    reservation.StartDate,
		EndDate:      reservation.EndDate,
		TotalPrice:   reservation.TotalPrice.StringFixed(2),
	})
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	if err := j.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	// Flag only after the send succeeded so a mail outage retries next cycle.
	if err := j.source.MarkReminderSent(ctx, reservation.ID); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}
