package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casierlabs/casier-backend/internal/auth"
	"github.com/casierlabs/casier-backend/internal/exports"
	"github.com/casierlabs/casier-backend/internal/lockers"
	"github.com/casierlabs/casier-backend/internal/payments"
	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/internal/users"
	"github.com/casierlabs/casier-backend/pkg/config"
	"github.com/casierlabs/casier-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubAuthService struct{}

func (stubAuthService) Register(context.Context, auth.RegisterRequest) (*auth.AuthResponse, error) {
	return &auth.AuthResponse{}, nil
}

func (stubAuthService) Login(context.Context, auth.LoginRequest) (*auth.AuthResponse, error) {
	return &auth.AuthResponse{}, nil
}

func (stubAuthService) Profile(context.Context, uuid.UUID) (*users.UserSummary, error) {
	return &users.UserSummary{}, nil
}

type stubLockerService struct{}

func (stubLockerService) Create(context.Context, lockers.CreateLockerDTO) (*lockers.LockerSummary, error) {
	return &lockers.LockerSummary{}, nil
}

func (stubLockerService) Update(context.Context, uuid.UUID, lockers.UpdateLockerDTO) (*lockers.LockerSummary, error) {
	return &lockers.LockerSummary{}, nil
}

func (stubLockerService) Delete(context.Context, uuid.UUID) error { return nil }

func (stubLockerService) Get(context.Context, uuid.UUID) (*lockers.LockerSummary, error) {
	return &lockers.LockerSummary{}, nil
}

func (stubLockerService) List(context.Context, lockers.ListParams) (*lockers.ListResult, error) {
	return &lockers.ListResult{}, nil
}

func (stubLockerService) Nearby(context.Context, lockers.NearbyParams) ([]lockers.LockerSummary, error) {
	return nil, nil
}

func (stubLockerService) Stats(context.Context) (*lockers.StatsResult, error) {
	return &lockers.StatsResult{}, nil
}

func (stubLockerService) Neighborhoods(context.Context) ([]lockers.NeighborhoodCount, error) {
	return nil, nil
}

type stubReservationService struct{}

func (stubReservationService) Create(context.Context, uuid.UUID, reservations.CreateReservationDTO) (*reservations.ReservationSummary, error) {
	return &reservations.ReservationSummary{}, nil
}

func (stubReservationService) Get(context.Context, uuid.UUID, bool, uuid.UUID) (*reservations.ReservationSummary, error) {
	return &reservations.ReservationSummary{}, nil
}

func (stubReservationService) ListByUser(context.Context, uuid.UUID) ([]reservations.ReservationSummary, error) {
	return nil, nil
}

func (stubReservationService) Cancel(context.Context, uuid.UUID, bool, uuid.UUID) error { return nil }

func (stubReservationService) Activate(context.Context, uuid.UUID, string, string, string) error {
	return nil
}

func (stubReservationService) CancelBySession(context.Context, string) error { return nil }

func (stubReservationService) MarkRefunded(context.Context, uuid.UUID) error { return nil }

func (stubReservationService) CompleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (stubReservationService) ExpireStalePending(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubPaymentService struct{}

func (stubPaymentService) InitiateCheckout(context.Context, uuid.UUID, uuid.UUID) (*payments.CheckoutResponse, error) {
	return &payments.CheckoutResponse{}, nil
}

func (stubPaymentService) ConfirmDirect(context.Context, uuid.UUID, uuid.UUID) (*reservations.ReservationSummary, error) {
	return &reservations.ReservationSummary{}, nil
}

func (stubPaymentService) Verify(context.Context, uuid.UUID, string) (*payments.VerifyResponse, error) {
	return &payments.VerifyResponse{}, nil
}

func (stubPaymentService) Refund(context.Context, uuid.UUID, bool, uuid.UUID) error { return nil }

type stubExportService struct{}

func (stubExportService) ReservationsCSV(context.Context, reservations.ExportFilters) ([]byte, error) {
	return nil, nil
}

func (stubExportService) Stats(context.Context) (*exports.StatsResponse, error) {
	return &exports.StatsResponse{}, nil
}

func newTestRouter() http.Handler {
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev", FrontendURL: "http://localhost:5173"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "casier", ExpirationMinutes: 60},
	}
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		nil,
		stubAuthService{},
		stubLockerService{},
		stubReservationService{},
		stubPaymentService{},
		stubExportService{},
		nil,
		nil,
		nil,
	)
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRouterPublicLockersListed(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lockers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRouterReservationsRequireAuth(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRouterPaymentRoutesRequireAuth(t *testing.T) {
	router := newTestRouter()
	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/payments/create"},
		{http.MethodPost, "/api/v1/payments/confirm"},
		{http.MethodGet, "/api/v1/payments/verify/cs_test_1"},
		{http.MethodPost, "/api/v1/payments/refund/" + uuid.New().String()},
	} {
		req := httptest.NewRequest(route.method, route.path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", route.method, route.path, resp.Code)
		}
	}
}

func TestRouterAdminRoutesRequireAuth(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/lockers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
