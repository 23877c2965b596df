package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/casierlabs/casier-backend/internal/reservations"
	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
)

// csvHeader matches the column order accounting imports expect.
var csvHeader = []string{
	"reservation_id",
	"user_email",
	"user_name",
	"locker_number",
	"locker_size",
	"start_date",
	"end_date",
	"duration_hours",
	"total_price",
	"status",
	"payment_status",
	"created_at",
}

// Service produces admin-facing reservation exports and aggregates.
type Service interface {
	ReservationsCSV(ctx context.Context, filters reservations.ExportFilters) ([]byte, error)
	Stats(ctx context.Context) (*StatsResponse, error)
}

type repository interface {
	ListForExport(ctx context.Context, filters reservations.ExportFilters) ([]models.Reservation, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// StatsResponse summarizes the ledger for the admin dashboard.
type StatsResponse struct {
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	Generated time.Time        `json:"generated_at"`
}

type ServiceParams struct {
	Repo repository
}

type service struct {
	repo repository
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reservations repository is required")
	}
	return &service{repo: params.Repo, now: time.Now}, nil
}

// ReservationsCSV renders matching reservations as a semicolon-separated
// CSV, the delimiter French spreadsheet locales default to.
func (s *service) ReservationsCSV(ctx context.Context, filters reservations.ExportFilters) ([]byte, error) {
	rows, err := s.repo.ListForExport(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations for export")
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Comma = ';'

	if err := writer.Write(csvHeader); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv header")
	}
	for _, row := range rows {
		if err := writer.Write(csvRecord(row)); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush csv")
	}
	return buf.Bytes(), nil
}

func csvRecord(row models.Reservation) []string {
	email, name := "", ""
	if row.User != nil {
		email = row.User.Email
		name = row.User.FirstName + " " + row.User.LastName
	}
	number, size := "", ""
	if row.Locker != nil {
		number = row.Locker.Number
		size = string(row.Locker.Size)
	}
	return []string{
		row.ID.String(),
		email,
		name,
		number,
		size,
		row.StartDate.UTC().Format(time.RFC3339),
		row.EndDate.UTC().Format(time.RFC3339),
		fmt.Sprintf("%d", row.DurationHours),
		row.TotalPrice.StringFixed(2),
		string(row.Status),
		string(row.PaymentStatus),
		row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *service) Stats(ctx context.Context) (*StatsResponse, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count reservations")
	}
	// Zero-fill so the dashboard always sees every bucket.
	for _, status := range []enums.ReservationStatus{
		enums.ReservationStatusPending,
		enums.ReservationStatusActive,
		enums.ReservationStatusCompleted,
		enums.ReservationStatusCancelled,
		enums.ReservationStatusExpired,
	} {
		if _, ok := byStatus[string(status)]; !ok {
			byStatus[string(status)] = 0
		}
	}
	var total int64
	for _, count := range byStatus {
		total += count
	}
	return &StatsResponse{
		Total:     total,
		ByStatus:  byStatus,
		Generated: s.now().UTC(),
	}, nil
}
