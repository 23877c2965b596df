package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
	"github.com/casierlabs/casier-backend/pkg/logger"
	"github.com/casierlabs/casier-backend/pkg/mail"
)

var centsFactor = decimal.NewFromInt(100)

// CheckoutResponse returns the hosted payment page reference.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// VerifyResponse reports the payment state of a checkout session.
type VerifyResponse struct {
	Paid        bool                            `json:"paid"`
	Reservation reservations.ReservationSummary `json:"reservation"`
}

// Service defines the payment bridge operations.
type Service interface {
	InitiateCheckout(ctx context.Context, userID, reservationID uuid.UUID) (*CheckoutResponse, error)
	ConfirmDirect(ctx context.Context, userID, reservationID uuid.UUID) (*reservations.ReservationSummary, error)
	Verify(ctx context.Context, userID uuid.UUID, sessionID string) (*VerifyResponse, error)
	Refund(ctx context.Context, actorID uuid.UUID, isAdmin bool, reservationID uuid.UUID) error
}

type reservationRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Reservation, error)
	SetSession(ctx context.Context, id uuid.UUID, sessionID, customerID string) error
}

type reservationStateMachine interface {
	Activate(ctx context.Context, id uuid.UUID, sessionID, customerID, paymentIntentID string) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
}

type userRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

type service struct {
	gateway      Gateway
	reservations reservationRepo
	ledger       reservationStateMachine
	users        userRepo
	mailer       mail.Sender
	logg         *logger.Logger
	currency     string
	frontendURL  string
}

// ServiceParams bundles the dependencies required to build a payment service.
type ServiceParams struct {
	Gateway         Gateway
	ReservationRepo reservationRepo
	Ledger          reservationStateMachine
	UserRepo        userRepo
	Mailer          mail.Sender
	Logger          *logger.Logger
	Currency        string
	FrontendURL     string
}

// NewService constructs a payment service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.ReservationRepo == nil {
		return nil, fmt.Errorf("reservations repository is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("reservation service is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "eur"
	}
	return &service{
		gateway:      params.Gateway,
		reservations: params.ReservationRepo,
		ledger:       params.Ledger,
		users:        params.UserRepo,
		mailer:       params.Mailer,
		logg:         params.Logger,
		currency:     currency,
		frontendURL:  strings.TrimSuffix(params.FrontendURL, "/"),
	}, nil
}

func (s *service) InitiateCheckout(ctx context.Context, userID, reservationID uuid.UUID) (*CheckoutResponse, error) {
	reservation, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	if reservation.Status != enums.ReservationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not awaiting payment")
	}
	if reservation.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is already paid")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	description := "Location de casier"
	if reservation.Locker != nil {
		description = fmt.Sprintf("Location du casier %s", reservation.Locker.Number)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID:  customerID,
		Currency:    s.currency,
		AmountCents: reservation.TotalPrice.Mul(centsFactor).IntPart(),
		Description: description,
		SuccessURL:  s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.frontendURL + "/payment/cancelled",
		Metadata: map[string]string{
			"reservation_id": reservation.ID.String(),
			"user_id":        userID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	if err := s.reservations.SetSession(ctx, reservation.ID, session.ID, customerID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store checkout session")
	}

	return &CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// ConfirmDirect settles a reservation without going through the gateway. It
// backs test and manual confirmation flows with the same idempotent-paid
// semantics as the webhook path.
func (s *service) ConfirmDirect(ctx context.Context, userID, reservationID uuid.UUID) (*reservations.ReservationSummary, error) {
	reservation, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}

	if reservation.PaymentStatus != enums.PaymentStatusPaid {
		sessionID := ""
		if reservation.StripeSessionID != nil {
			sessionID = *reservation.StripeSessionID
		}
		customerID := ""
		if reservation.StripeCustomerID != nil {
			customerID = *reservation.StripeCustomerID
		}
		if err := s.ledger.Activate(ctx, reservation.ID, sessionID, customerID, ""); err != nil {
			return nil, err
		}
		reservation, err = s.findReservation(ctx, reservation.ID)
		if err != nil {
			return nil, err
		}
	}

	summary := reservations.FromModel(reservation)
	return &summary, nil
}

// Verify reconciles a checkout session directly with the gateway. It backs the
// success-page poll and covers webhook deliveries that never arrived.
func (s *service) Verify(ctx context.Context, userID uuid.UUID, sessionID string) (*VerifyResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	reservation, err := s.reservations.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found for session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reservation")
	}
	if reservation.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch checkout session")
	}

	if session.Paid && reservation.Status == enums.ReservationStatusPending {
		if err := s.ledger.Activate(ctx, reservation.ID, session.ID, session.CustomerID, session.PaymentIntentID); err != nil {
			return nil, err
		}
		refreshed, err := s.findReservation(ctx, reservation.ID)
		if err != nil {
			return nil, err
		}
		reservation = refreshed
	}

	summary := reservations.FromModel(reservation)
	return &VerifyResponse{Paid: session.Paid, Reservation: summary}, nil
}

func (s *service) Refund(ctx context.Context, actorID uuid.UUID, isAdmin bool, reservationID uuid.UUID) error {
	reservation, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !isAdmin && reservation.UserID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	if reservation.PaymentStatus != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not paid")
	}
	// The intent id is stored on activation; the session lookup only covers
	// rows written before that column existed.
	paymentIntentID := ""
	if reservation.StripePaymentIntentID != nil {
		paymentIntentID = *reservation.StripePaymentIntentID
	}
	if paymentIntentID == "" {
		if reservation.StripeSessionID == nil || *reservation.StripeSessionID == "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation has no checkout session")
		}
		session, err := s.gateway.GetCheckoutSession(ctx, *reservation.StripeSessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch checkout session")
		}
		paymentIntentID = session.PaymentIntentID
	}
	if paymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session has no payment to refund")
	}

	if _, err := s.gateway.RefundPayment(ctx, paymentIntentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
	}

	if err := s.ledger.MarkRefunded(ctx, reservation.ID); err != nil {
		return err
	}

	s.sendRefundEmail(ctx, reservation)
	return nil
}

func (s *service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, name)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway customer")
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway customer")
	}
	return customerID, nil
}

func (s *service) findReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reservation")
	}
	return reservation, nil
}

// sendRefundEmail is best-effort; a mail outage never fails the refund.
func (s *service) sendRefundEmail(ctx context.Context, reservation *models.Reservation) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.FindByID(ctx, reservation.UserID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "skipping refund email, user lookup failed")
		}
		return
	}
	number := ""
	if reservation.Locker != nil {
		number = reservation.Locker.Number
	}
	msg, err := mail.RenderRefundIssued(user.Email, mail.ReservationEmailData{
		FirstName:    user.FirstName,
		LockerNumber: number,
		StartDate:    reservation.StartDate,
		EndDate:      reservation.EndDate,
		TotalPrice:   reservation.TotalPrice.StringFixed(2),
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "render refund email", err)
		}
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil && s.logg != nil {
		s.logg.Error(ctx, "send refund email", err)
	}
}
