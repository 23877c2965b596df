package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
)

type fakeReminderSource struct {
	due    []models.Reservation
	marked []uuid.UUID
}

func (f *fakeReminderSource) DueReminders(_ context.Context, _ time.Time, _ time.Duration) ([]models.Reservation, error) {
	return f.due, nil
}

func (f *fakeReminderSource) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakeMailSender struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailSender) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func dueReservation() models.Reservation {
	return models.Reservation{
		ID:         uuid.New(),
		StartDate:  time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		TotalPrice: decimal.RequireFromString("4.50"),
		User:       &models.User{Email: "marie@example.com", FirstName: "Marie"},
		Locker:     &models.Locker{Number: "A-12"},
	}
}

func newReminderJob(t *testing.T, source *fakeReminderSource, sender *fakeMailSender) *expiryReminderJob {
	t.Helper()
	jobIface, err := NewExpiryReminderJob(ExpiryReminderJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Source: source,
		Mailer: sender,
	})
	if err != nil {
		t.Fatalf("NewExpiryReminderJob: %v", err)
	}
	return jobIface.(*expiryReminderJob)
}

func TestExpiryReminderJob_SendsAndMarks(t *testing.T) {
	reservation := dueReservation()
	source := &fakeReminderSource{due: []models.Reservation{reservation}}
	sender := &fakeMailSender{}
	job := newReminderJob(t, source, sender)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	if sender.sent[0].To != "marie@example.com" {
		t.Fatalf("unexpected recipient %q", sender.sent[0].To)
	}
	if len(source.marked) != 1 || source.marked[0] != reservation.ID {
		t.Fatalf("expected reservation flagged as reminded")
	}
}

func TestExpiryReminderJob_SendFailureLeavesFlagUnset(t *testing.T) {
	reservation := dueReservation()
	source := &fakeReminderSource{due: []models.Reservation{reservation}}
	sender := &fakeMailSender{err: errors.New("smtp down")}
	job := newReminderJob(t, source, sender)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected send error to surface")
	}
	if len(source.marked) != 0 {
		t.Fatalf("reminder must not be flagged when the send failed")
	}
}

func TestExpiryReminderJob_ContinuesPastBadRow(t *testing.T) {
	broken := dueReservation()
	broken.User = nil
	healthy := dueReservation()
	source := &fakeReminderSource{due: []models.Reservation{broken, healthy}}
	sender := &fakeMailSender{}
	job := newReminderJob(t, source, sender)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error for the broken row")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("healthy row should still be reminded, sent %d", len(sender.sent))
	}
	if len(source.marked) != 1 || source.marked[0] != healthy.ID {
		t.Fatalf("expected only the healthy reservation flagged")
	}
}
