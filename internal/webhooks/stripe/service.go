package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
)

// reservationLedger is the slice of the reservation service the webhook
// handler drives: payment confirmation and abandoned-checkout cleanup.
type reservationLedger interface {
	Activate(ctx context.Context, id uuid.UUID, sessionID, customerID, paymentIntentID string) error
	CancelBySession(ctx context.Context, sessionID string) error
}

type ServiceParams struct {
	Ledger reservationLedger
}

type Service struct {
	ledger reservationLedger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reservation service required")
	}
	return &Service{ledger: params.Ledger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		reservationID, err := reservationIDFromMetadata(session.Metadata)
		if err != nil {
			return err
		}
		customerID := ""
		if session.Customer != nil {
			customerID = session.Customer.ID
		}
		paymentIntentID := ""
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}
		return s.ledger.Activate(ctx, reservationID, session.ID, customerID, paymentIntentID)
	case stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.ledger.CancelBySession(ctx, session.ID)
	default:
		// Stripe delivers every event type the endpoint is subscribed to;
		// anything we don't act on is acknowledged and dropped.
		return nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}

func reservationIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw, ok := metadata["reservation_id"]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation_id missing from session metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse reservation_id metadata")
	}
	return id, nil
}
