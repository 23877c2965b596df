package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
)

// Service defines the reservation ledger operations.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, dto CreateReservationDTO) (*ReservationSummary, error)
	Get(ctx context.Context, userID uuid.UUID, isAdmin bool, id uuid.UUID) (*ReservationSummary, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]ReservationSummary, error)
	Cancel(ctx context.Context, userID uuid.UUID, isAdmin bool, id uuid.UUID) error

	// Activate flips a paid reservation to active and claims the locker.
	// Calling it again for an already-active reservation is a no-op.
	Activate(ctx context.Context, id uuid.UUID, sessionID, customerID, paymentIntentID string) error
	// CancelBySession marks the pending reservation tied to an abandoned
	// checkout session as cancelled, keeping the record.
	CancelBySession(ctx context.Context, sessionID string) error

	// MarkRefunded records a refund, cancelling the rental and releasing the
	// locker when it was active.
	MarkRefunded(ctx context.Context, id uuid.UUID) error

	// CompleteExpired closes every active reservation whose window has passed
	// and releases the lockers. It is shared by the cron sweep and the lazy
	// sweep performed on user listings.
	CompleteExpired(ctx context.Context, now time.Time) (int, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository interface {
	CreateWithTx(tx *gorm.DB, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
	HasOpenForUserWithTx(tx *gorm.DB, userID uuid.UUID, now time.Time) (bool, error)
	HasOpenForLockerWithTx(tx *gorm.DB, lockerID uuid.UUID, now time.Time) (bool, error)
	TransitionStatusWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.ReservationStatus, extra map[string]any) (int64, error)
	UpdatePaymentStatusIfWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.PaymentStatus) (int64, error)
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) (int64, error)
	CompleteExpiredWithTx(tx *gorm.DB, now time.Time) ([]uuid.UUID, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type lockerRepository interface {
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Locker, error)
	TransitionStatusWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.LockerStatus) (int64, error)
	RecordUsageWithTx(tx *gorm.DB, id uuid.UUID) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    repository
	lockers lockerRepository
	users   userLookup
	tx      txRunner
	mailer  mail.Sender
	logg    *logger.Logger
	now     func() time.Time
}

// ServiceParams bundles the dependencies required to build a reservation service.
type ServiceParams struct {
	Repo       repository
	LockerRepo lockerRepository
	UserRepo   userLookup
	Tx         txRunner
	Mailer     mail.Sender
	Logger     *logger.Logger
}

// NewService constructs a reservation service with the provided dependencies.
// The mailer is optional; confirmations are skipped when it is absent.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reservations repository is required")
	}
	if params.LockerRepo == nil {
		return nil, fmt.Errorf("lockers repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &service{
		repo:    params.Repo,
		lockers: params.LockerRepo,
		users:   params.UserRepo,
		tx:      params.Tx,
		mailer:  params.Mailer,
		logg:    params.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, dto CreateReservationDTO) (*ReservationSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if dto.LockerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker id required")
	}
	if dto.DurationHours < MinDurationHours || dto.DurationHours > MaxDurationHours {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("duration must be between %d and %d hours", MinDurationHours, MaxDurationHours))
	}

	// Rentals start when booked; clients only choose how long.
	start := s.now()
	end := start.Add(time.Duration(dto.DurationHours) * time.Hour)

	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		open, err := s.repo.HasOpenForUserWithTx(tx, userID, start)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open reservations")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "you already have an open reservation")
		}

		// The FOR UPDATE lookup serializes concurrent bookings of one locker,
		// so the open-reservation check below cannot race.
		locker, err := s.lockers.FindByIDWithTx(tx, dto.LockerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "locker not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup locker")
		}
		if locker.Status != enums.LockerStatusAvailable {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "locker is not available")
		}

		// The locker row stays available until a payment claims it, so a
		// pending reservation holds it through this check instead.
		claimed, err := s.repo.HasOpenForLockerWithTx(tx, dto.LockerID, start)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check locker reservations")
		}
		if claimed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "locker is not available")
		}

		reservation = &models.Reservation{
			UserID:        userID,
			LockerID:      dto.LockerID,
			StartDate:     start,
			EndDate:       end,
			DurationHours: dto.DurationHours,
			TotalPrice:    ComputeTotalPrice(locker.PricePerDay, dto.DurationHours),
			Status:        enums.ReservationStatusPending,
			PaymentStatus: enums.PaymentStatusPending,
		}
		reservation.Locker = locker
		if err := s.repo.CreateWithTx(tx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reservation")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reservation")
	}

	s.sendCreatedEmail(ctx, reservation)

	summary := FromModel(reservation)
	return &summary, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID, isAdmin bool, id uuid.UUID) (*ReservationSummary, error) {
	reservation, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && reservation.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	summary := FromModel(reservation)
	return &summary, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]ReservationSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	// Lazy sweep so listings never show an active rental past its end date,
	// even if the cron worker is behind.
	if _, err := s.CompleteExpired(ctx, s.now()); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
	}
	items := make([]ReservationSummary, 0, len(rows))
	for i := range rows {
		items = append(items, FromModel(&rows[i]))
	}
	return items, nil
}

func (s *service) Cancel(ctx context.Context, userID uuid.UUID, isAdmin bool, id uuid.UUID) error {
	reservation, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !isAdmin && reservation.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	if !reservation.Status.IsOpen() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is already closed")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if reservation.Status == enums.ReservationStatusActive {
			affected, err := s.lockers.TransitionStatusWithTx(tx, reservation.LockerID,
				enums.LockerStatusReserved, enums.LockerStatusAvailable)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release locker")
			}
			if affected == 0 && s.logg != nil {
				s.logg.Warn(s.logg.WithLockerID(ctx, reservation.LockerID.String()),
					"locker was not in reserved state during cancel")
			}
		}
		affected, err := s.repo.DeleteWithTx(tx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete reservation")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation changed concurrently")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel reservation")
	}
	return nil
}

func (s *service) Activate(ctx context.Context, id uuid.UUID, sessionID, customerID, paymentIntentID string) error {
	reservation, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	// Replayed webhooks land here once the first delivery committed.
	if reservation.Status == enums.ReservationStatusActive &&
		reservation.PaymentStatus == enums.PaymentStatusPaid {
		return nil
	}
	if reservation.Status != enums.ReservationStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not pending")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.lockers.TransitionStatusWithTx(tx, reservation.LockerID,
			enums.LockerStatusAvailable, enums.LockerStatusReserved)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim locker")
		}
		if affected == 0 {
			// Another pending reservation paid first. The charge stands and
			// must be refunded out of band.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "locker already claimed")
		}

		extra := map[string]any{"payment_status": enums.PaymentStatusPaid}
		if sessionID != "" {
			extra["stripe_session_id"] = sessionID
		}
		if customerID != "" {
			extra["stripe_customer_id"] = customerID
		}
		if paymentIntentID != "" {
			// Kept so a refund does not need a gateway round-trip.
			extra["stripe_payment_intent_id"] = paymentIntentID
		}
		affected, err = s.repo.TransitionStatusWithTx(tx, id,
			enums.ReservationStatusPending, enums.ReservationStatusActive, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate reservation")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation changed concurrently")
		}

		if err := s.lockers.RecordUsageWithTx(tx, reservation.LockerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record locker usage")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate reservation")
	}

	s.sendPaidEmail(ctx, reservation)
	return nil
}

func (s *service) CancelBySession(ctx context.Context, sessionID string) error {
	reservation, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found for session")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reservation")
	}
	if reservation.Status != enums.ReservationStatusPending {
		// Session expiry raced a completed payment or an earlier expiry; nothing to do.
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.TransitionStatusWithTx(tx, reservation.ID,
			enums.ReservationStatusPending, enums.ReservationStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel reservation")
		}
		if affected == 0 && s.logg != nil {
			s.logg.Warn(s.logg.WithReservationID(ctx, reservation.ID.String()),
				"reservation left pending state during session expiry")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel reservation")
	}
	return nil
}

func (s *service) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	reservation, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if reservation.PaymentStatus != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not paid")
	}

	// The payment flip, the cancellation and the locker release commit
	// together; a crash can never leave a refunded-but-active rental behind.
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.UpdatePaymentStatusIfWithTx(tx, id,
			enums.PaymentStatusPaid, enums.PaymentStatusRefunded)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark refunded")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
		}

		if reservation.Status != enums.ReservationStatusActive {
			return nil
		}
		affected, err = s.repo.TransitionStatusWithTx(tx, id,
			enums.ReservationStatusActive, enums.ReservationStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel reservation")
		}
		if affected == 0 {
			return nil
		}
		released, err := s.lockers.TransitionStatusWithTx(tx, reservation.LockerID,
			enums.LockerStatusReserved, enums.LockerStatusAvailable)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release locker")
		}
		if released == 0 && s.logg != nil {
			s.logg.Warn(s.logg.WithLockerID(ctx, reservation.LockerID.String()),
				"locker was not in reserved state during refund")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark refunded")
	}
	return nil
}

func (s *service) CompleteExpired(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lockerIDs, err := s.repo.CompleteExpiredWithTx(tx, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete expired reservations")
		}
		count = len(lockerIDs)
		for _, lockerID := range lockerIDs {
			affected, err := s.lockers.TransitionStatusWithTx(tx, lockerID,
				enums.LockerStatusReserved, enums.LockerStatusAvailable)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release locker")
			}
			if affected == 0 && s.logg != nil {
				s.logg.Warn(s.logg.WithLockerID(ctx, lockerID.String()),
					"locker was not in reserved state during sweep")
			}
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return 0, typed
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete expired reservations")
	}
	return count, nil
}

func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.repo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire stale reservations")
	}
	return count, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reservation")
	}
	return reservation, nil
}

func (s *service) sendCreatedEmail(ctx context.Context, reservation *models.Reservation) {
	s.sendEmail(ctx, reservation, mail.RenderReservationCreated)
}

func (s *service) sendPaidEmail(ctx context.Context, reservation *models.Reservation) {
	s.sendEmail(ctx, reservation, mail.RenderPaymentConfirmed)
}

// sendEmail is best-effort; a mail outage never fails the reservation flow.
func (s *service) sendEmail(ctx context.Context, reservation *models.Reservation,
	render func(string, mail.ReservationEmailData) (mail.Message, error)) {
	if s.mailer == nil || reservation == nil {
		return
	}

	user := reservation.User
	if user == nil {
		loaded, err := s.users.FindByID(ctx, reservation.UserID)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "skipping reservation email, user lookup failed")
			}
			return
		}
		user = loaded
	}

	number := ""
	if reservation.Locker != nil {
		number = reservation.Locker.Number
	}
	msg, err := render(user.Email, mail.ReservationEmailData{
		FirstName:    user.FirstName,
		LockerNumber: number,
		StartDate:    reservation.StartDate,
		EndDate:      reservation.EndDate,
		TotalPrice:   reservation.TotalPrice.StringFixed(2),
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "render reservation email", err)
		}
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil && s.logg != nil {
		s.logg.Error(ctx, "send reservation email", err)
	}
}
