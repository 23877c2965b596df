package exports

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
)

type fakeExportRepo struct {
	rows    []models.Reservation
	filters reservations.ExportFilters
	counts  map[string]int64
}

func (f *fakeExportRepo) ListForExport(_ context.Context, filters reservations.ExportFilters) ([]models.Reservation, error) {
	f.filters = filters
	return f.rows, nil
}

func (f *fakeExportRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	return f.counts, nil
}

func TestReservationsCSVUsesSemicolonDelimiter(t *testing.T) {
	row := models.Reservation{
		ID:            uuid.New(),
		StartDate:     time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC),
		DurationHours: 24,
		TotalPrice:    decimal.RequireFromString("4.50"),
		Status:        enums.ReservationStatusActive,
		PaymentStatus: enums.PaymentStatusPaid,
		User:          &models.User{Email: "marie@example.com", FirstName: "Marie", LastName: "Durand"},
		Locker:        &models.Locker{Number: "A-12", Size: enums.LockerSizeMedium},
	}
	repo := &fakeExportRepo{rows: []models.Reservation{row}}
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	out, err := svc.ReservationsCSV(context.Background(), reservations.ExportFilters{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	reader := csv.NewReader(strings.NewReader(string(out)))
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}
	if records[0][0] != "reservation_id" {
		t.Fatalf("unexpected header %v", records[0])
	}
	got := records[1]
	if got[1] != "marie@example.com" || got[2] != "Marie Durand" {
		t.Fatalf("unexpected user columns %v", got)
	}
	if got[3] != "A-12" || got[8] != "4.50" || got[10] != "paid" {
		t.Fatalf("unexpected row %v", got)
	}
}

func TestReservationsCSVForwardsFilters(t *testing.T) {
	repo := &fakeExportRepo{}
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	status := enums.ReservationStatusCompleted
	userID := uuid.New()
	if _, err := svc.ReservationsCSV(context.Background(), reservations.ExportFilters{
		Status: &status,
		UserID: &userID,
	}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if repo.filters.Status == nil || *repo.filters.Status != status {
		t.Fatal("status filter not forwarded")
	}
	if repo.filters.UserID == nil || *repo.filters.UserID != userID {
		t.Fatal("user filter not forwarded")
	}
}

func TestStatsZeroFillsMissingBuckets(t *testing.T) {
	repo := &fakeExportRepo{counts: map[string]int64{"active": 3, "completed": 7}}
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 10 {
		t.Fatalf("expected total 10, got %d", stats.Total)
	}
	if stats.ByStatus["pending"] != 0 || stats.ByStatus["expired"] != 0 {
		t.Fatalf("expected zero-filled buckets, got %v", stats.ByStatus)
	}
	if stats.ByStatus["completed"] != 7 {
		t.Fatalf("expected completed=7, got %v", stats.ByStatus)
	}
}
