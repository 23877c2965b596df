package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/api/middleware"
	reservationsvc "github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/pkg/enums"
)

type stubReservationService struct {
	created       *reservationsvc.ReservationSummary
	userID        uuid.UUID
	cancelAsAdmin bool
	err           error
}

func (s *stubReservationService) Create(_ context.Context, userID uuid.UUID, _ reservationsvc.CreateReservationDTO) (*reservationsvc.ReservationSummary, error) {
	s.userID = userID
	return s.created, s.err
}

func (s *stubReservationService) Get(context.Context, uuid.UUID, bool, uuid.UUID) (*reservationsvc.ReservationSummary, error) {
	return s.created, s.err
}

func (s *stubReservationService) ListByUser(context.Context, uuid.UUID) ([]reservationsvc.ReservationSummary, error) {
	if s.created == nil {
		return nil, s.err
	}
	return []reservationsvc.ReservationSummary{*s.created}, s.err
}

func (s *stubReservationService) Cancel(_ context.Context, _ uuid.UUID, isAdmin bool, _ uuid.UUID) error {
	s.cancelAsAdmin = isAdmin
	return s.err
}

func (s *stubReservationService) Activate(context.Context, uuid.UUID, string, string, string) error {
	return s.err
}

func (s *stubReservationService) CancelBySession(context.Context, string) error { return s.err }

func (s *stubReservationService) MarkRefunded(context.Context, uuid.UUID) error { return s.err }

func (s *stubReservationService) CompleteExpired(context.Context, time.Time) (int, error) {
	return 0, s.err
}

func (s *stubReservationService) ExpireStalePending(context.Context, time.Time) (int64, error) {
	return 0, s.err
}

func TestCreateReservationUsesAuthenticatedUser(t *testing.T) {
	userID := uuid.New()
	summary := &reservationsvc.ReservationSummary{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     enums.ReservationStatusPending,
		TotalPrice: decimal.RequireFromString("4.50"),
	}
	svc := &stubReservationService{created: summary}
	handler := CreateReservation(svc, nil)

	body := fmt.Sprintf(`{"locker_id":%q,"duration_hours":24}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.userID != userID {
		t.Fatalf("expected user %s forwarded, got %s", userID, svc.userID)
	}

	var envelope struct {
		Data reservationsvc.ReservationSummary `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != summary.ID {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestCancelReservationForwardsAdminRole(t *testing.T) {
	svc := &stubReservationService{}
	handler := CancelReservation(svc, nil)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reservations/"+id.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithUserID(ctx, uuid.New().String())
	ctx = middleware.WithRole(ctx, string(enums.UserRoleAdmin))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req.WithContext(ctx))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.cancelAsAdmin {
		t.Fatal("admin role should be forwarded to the cancel operation")
	}
}

func TestCreateReservationWithoutUserContext(t *testing.T) {
	handler := CreateReservation(&stubReservationService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
