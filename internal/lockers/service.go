package lockers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/pkg/db"
	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
	"github.com/casierlabs/casier-backend/pkg/pagination"
)

const (
	// DefaultNearbyRadiusKM bounds proximity searches when the client sends none.
	DefaultNearbyRadiusKM = 2.0
	// MaxNearbyRadiusKM caps how wide a proximity search may reach.
	MaxNearbyRadiusKM = 25.0
)

// Service defines locker registry operations.
type Service interface {
	Create(ctx context.Context, dto CreateLockerDTO) (*LockerSummary, error)
	Update(ctx context.Context, id uuid.UUID, dto UpdateLockerDTO) (*LockerSummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*LockerSummary, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Nearby(ctx context.Context, params NearbyParams) ([]LockerSummary, error)
	Neighborhoods(ctx context.Context) ([]NeighborhoodCount, error)
	Stats(ctx context.Context) (*StatsResult, error)
}

type repository interface {
	Create(ctx context.Context, locker *models.Locker) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Locker, error)
	Update(ctx context.Context, locker *models.Locker) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	List(ctx context.Context, filters ListFilters) ([]models.Locker, *pagination.Cursor, error)
	Nearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]LockerWithDistance, error)
	Neighborhoods(ctx context.Context) ([]NeighborhoodCount, error)
	CountGrouped(ctx context.Context, column string) (map[string]int64, error)
	HasReservations(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo repository
}

// NewService wires locker dependencies.
func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lockers repository is required")
	}
	return &service{repo: repo}, nil
}

// ListParams configures filtering and pagination for locker listings.
type ListParams struct {
	Status       string
	Size         string
	City         string
	Neighborhood string
	Accessible   *bool
	MaxPrice     string
	Limit        int
	Cursor       string
}

// ListResult wraps returned lockers and the cursor for the next page.
type ListResult struct {
	Items  []LockerSummary `json:"items"`
	Cursor string          `json:"cursor"`
}

// NearbyParams configures a proximity search.
type NearbyParams struct {
	Latitude  float64
	Longitude float64
	RadiusKM  float64
	Limit     int
}

func (s *service) Create(ctx context.Context, dto CreateLockerDTO) (*LockerSummary, error) {
	size, err := enums.ParseLockerSize(dto.Size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid size")
	}
	price, err := parsePrice(dto.PricePerDay)
	if err != nil {
		return nil, err
	}

	locker := &models.Locker{
		Number:      strings.TrimSpace(dto.Number),
		Size:        size,
		Status:      enums.LockerStatusAvailable,
		PricePerDay: price,
		Address:     dto.Address,
		Latitude:    dto.Latitude,
		Longitude:   dto.Longitude,
		Partner:     dto.Partner,
		Accessible:  dto.Accessible,
	}
	if err := s.repo.Create(ctx, locker); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "locker number already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create locker")
	}

	summary := FromModel(locker)
	return &summary, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, dto UpdateLockerDTO) (*LockerSummary, error) {
	locker, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Size != nil {
		size, err := enums.ParseLockerSize(*dto.Size)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid size")
		}
		locker.Size = size
	}
	if dto.Status != nil {
		status, err := enums.ParseLockerStatus(*dto.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		if locker.Status == enums.LockerStatusReserved && status != enums.LockerStatusReserved {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "locker has an active rental")
		}
		locker.Status = status
	}
	if dto.PricePerDay != nil {
		price, err := parsePrice(*dto.PricePerDay)
		if err != nil {
			return nil, err
		}
		locker.PricePerDay = price
	}
	if dto.Address != nil {
		locker.Address = *dto.Address
	}
	if dto.Latitude != nil {
		locker.Latitude = *dto.Latitude
	}
	if dto.Longitude != nil {
		locker.Longitude = *dto.Longitude
	}
	if dto.Partner != nil {
		locker.Partner = dto.Partner
	}
	if dto.Accessible != nil {
		locker.Accessible = *dto.Accessible
	}

	if err := s.repo.Update(ctx, locker); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update locker")
	}
	summary := FromModel(locker)
	return &summary, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	locker, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if locker.Status == enums.LockerStatusReserved || locker.Status == enums.LockerStatusOccupied {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "locker has an active rental")
	}

	used, err := s.repo.HasReservations(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check reservations")
	}
	if used {
		return pkgerrors.New(pkgerrors.CodeConflict, "locker has reservation history")
	}

	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete locker")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "locker not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*LockerSummary, error) {
	locker, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := FromModel(locker)
	return &summary, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	filters := ListFilters{
		City:         strings.TrimSpace(params.City),
		Neighborhood: strings.TrimSpace(params.Neighborhood),
		Accessible:   params.Accessible,
		Limit:        pagination.LimitWithBuffer(params.Limit),
	}
	if params.Status != "" {
		status, err := enums.ParseLockerStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}
	if params.Size != "" {
		size, err := enums.ParseLockerSize(params.Size)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid size")
		}
		filters.Size = &size
	}
	if params.MaxPrice != "" {
		if _, err := parsePrice(params.MaxPrice); err != nil {
			return nil, err
		}
		filters.MaxPrice = &params.MaxPrice
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		filters.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list lockers")
	}

	items := make([]LockerSummary, 0, len(rows))
	for i := range rows {
		items = append(items, FromModel(&rows[i]))
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Nearby(ctx context.Context, params NearbyParams) ([]LockerSummary, error) {
	if params.Latitude < -90 || params.Latitude > 90 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "latitude out of range")
	}
	if params.Longitude < -180 || params.Longitude > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "longitude out of range")
	}

	radius := params.RadiusKM
	if radius <= 0 {
		radius = DefaultNearbyRadiusKM
	}
	if radius > MaxNearbyRadiusKM {
		radius = MaxNearbyRadiusKM
	}

	rows, err := s.repo.Nearby(ctx, params.Latitude, params.Longitude, radius, pagination.NormalizeLimit(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search lockers")
	}

	items := make([]LockerSummary, 0, len(rows))
	for i := range rows {
		summary := FromModel(&rows[i].Locker)
		distance := rows[i].DistanceKM
		summary.DistanceKM = &distance
		items = append(items, summary)
	}
	return items, nil
}

func (s *service) Neighborhoods(ctx context.Context) ([]NeighborhoodCount, error) {
	rows, err := s.repo.Neighborhoods(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate neighborhoods")
	}
	return rows, nil
}

// StatsResult summarises the fleet for the public stats endpoint.
type StatsResult struct {
	Total     int64            `json:"total"`
	Available int64            `json:"available"`
	ByStatus  map[string]int64 `json:"by_status"`
	ByCity    map[string]int64 `json:"by_city"`
	BySize    map[string]int64 `json:"by_size"`
}

func (s *service) Stats(ctx context.Context) (*StatsResult, error) {
	byStatus, err := s.repo.CountGrouped(ctx, "status")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate locker statuses")
	}
	byCity, err := s.repo.CountGrouped(ctx, "address->>'city'")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate locker cities")
	}
	bySize, err := s.repo.CountGrouped(ctx, "size")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate locker sizes")
	}

	for _, status := range []enums.LockerStatus{
		enums.LockerStatusAvailable,
		enums.LockerStatusReserved,
		enums.LockerStatusOccupied,
		enums.LockerStatusMaintenance,
	} {
		if _, ok := byStatus[string(status)]; !ok {
			byStatus[string(status)] = 0
		}
	}

	result := &StatsResult{
		Available: byStatus[string(enums.LockerStatusAvailable)],
		ByStatus:  byStatus,
		ByCity:    byCity,
		BySize:    bySize,
	}
	for _, count := range byStatus {
		result.Total += count
	}
	return result, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Locker, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker id required")
	}
	locker, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "locker not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup locker")
	}
	return locker, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	if price.IsNegative() || price.IsZero() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	return price.Round(2), nil
}
