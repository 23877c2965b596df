package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
)

type stubLedger struct {
	activated  []uuid.UUID
	sessionIDs []string
	intentIDs  []string
	cancelled  []string
	err        error
}

func (s *stubLedger) Activate(_ context.Context, id uuid.UUID, sessionID, _, paymentIntentID string) error {
	if s.err != nil {
		return s.err
	}
	s.activated = append(s.activated, id)
	s.sessionIDs = append(s.sessionIDs, sessionID)
	s.intentIDs = append(s.intentIDs, paymentIntentID)
	return nil
}

func (s *stubLedger) CancelBySession(_ context.Context, sessionID string) error {
	if s.err != nil {
		return s.err
	}
	s.cancelled = append(s.cancelled, sessionID)
	return nil
}

func checkoutEvent(t *testing.T, eventType stripe.EventType, session *stripe.CheckoutSession) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestService_HandleCheckoutCompletedActivatesReservation(t *testing.T) {
	reservationID := uuid.New()
	ledger := &stubLedger{}
	service, err := NewService(ServiceParams{Ledger: ledger})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_1",
		Customer:      &stripe.Customer{ID: "cus_test_1"},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_test_1"},
		Metadata:      map[string]string{"reservation_id": reservationID.String()},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ledger.activated) != 1 || ledger.activated[0] != reservationID {
		t.Fatalf("expected reservation activated")
	}
	if ledger.sessionIDs[0] != "cs_test_1" {
		t.Fatalf("expected session id forwarded, got %q", ledger.sessionIDs[0])
	}
	if ledger.intentIDs[0] != "pi_test_1" {
		t.Fatalf("expected payment intent forwarded, got %q", ledger.intentIDs[0])
	}
}

func TestService_HandleCheckoutCompletedMissingMetadata(t *testing.T) {
	ledger := &stubLedger{}
	service, err := NewService(ServiceParams{Ledger: ledger})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID: "cs_test_1",
	})

	handleErr := service.HandleEvent(context.Background(), event)
	typed := pkgerrors.As(handleErr)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", handleErr)
	}
	if len(ledger.activated) != 0 {
		t.Fatalf("reservation must not be activated")
	}
}

func TestService_HandleCheckoutExpiredCancelsReservation(t *testing.T) {
	ledger := &stubLedger{}
	service, err := NewService(ServiceParams{Ledger: ledger})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := checkoutEvent(t, stripe.EventTypeCheckoutSessionExpired, &stripe.CheckoutSession{
		ID: "cs_test_2",
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ledger.cancelled) != 1 || ledger.cancelled[0] != "cs_test_2" {
		t.Fatalf("expected session cancelled")
	}
}

func TestService_HandleUnknownEventIgnored(t *testing.T) {
	ledger := &stubLedger{}
	service, err := NewService(ServiceParams{Ledger: ledger})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &stripe.Event{
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ledger.activated) != 0 || len(ledger.cancelled) != 0 {
		t.Fatalf("unknown event must be a no-op")
	}
}

type stubIdempotencyStore struct {
	seen map[string]bool
}

func (s *stubIdempotencyStore) Get(_ context.Context, _ string) (string, error) { return "", nil }

func (s *stubIdempotencyStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "casier:idempotency:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.seen, key)
	}
	return nil
}

func TestIdempotencyGuard_DuplicateAndRetry(t *testing.T) {
	store := &stubIdempotencyStore{}
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	duplicate, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || duplicate {
		t.Fatalf("first delivery should pass, duplicate=%v err=%v", duplicate, err)
	}
	duplicate, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !duplicate {
		t.Fatalf("second delivery should be flagged, duplicate=%v err=%v", duplicate, err)
	}

	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("delete marker: %v", err)
	}
	duplicate, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || duplicate {
		t.Fatalf("retry after delete should pass, duplicate=%v err=%v", duplicate, err)
	}
}
