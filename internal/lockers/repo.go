package lockers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	"github.com/casierlabs/casier-backend/pkg/pagination"
)

// Repository handles locker persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to locker operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new locker row.
func (r *Repository) Create(ctx context.Context, locker *models.Locker) error {
	if locker == nil {
		return fmt.Errorf("locker is required")
	}
	return r.db.WithContext(ctx).Create(locker).Error
}

// FindByID loads a locker by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Locker, error) {
	var locker models.Locker
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&locker).Error; err != nil {
		return nil, err
	}
	return &locker, nil
}

// FindByIDWithTx loads a locker with a row lock inside the provided transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Locker, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var locker models.Locker
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&locker, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &locker, nil
}

// Update saves the provided locker.
func (r *Repository) Update(ctx context.Context, locker *models.Locker) error {
	if locker == nil {
		return fmt.Errorf("locker is required")
	}
	return r.db.WithContext(ctx).Save(locker).Error
}

// Delete removes a locker row. Lockers with reservation history are kept by the
// service layer; this only runs for never-used units.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Locker{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// ListFilters narrows the locker listing.
type ListFilters struct {
	Status       *enums.LockerStatus
	Size         *enums.LockerSize
	City         string
	Neighborhood string
	Accessible   *bool
	MaxPrice     *string
	Limit        int
	Cursor       *pagination.Cursor
}

// List returns lockers matching the filters, newest first, plus the cursor for
// the next page when more rows exist.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Locker, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Locker{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Size != nil {
		query = query.Where("size = ?", *filters.Size)
	}
	if filters.City != "" {
		query = query.Where("address->>'city' = ?", filters.City)
	}
	if filters.Neighborhood != "" {
		query = query.Where("address->>'neighborhood' = ?", filters.Neighborhood)
	}
	if filters.Accessible != nil {
		query = query.Where("accessible = ?", *filters.Accessible)
	}
	if filters.MaxPrice != nil {
		query = query.Where("price_per_day <= ?", *filters.MaxPrice)
	}
	if filters.Cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			filters.Cursor.CreatedAt, filters.Cursor.ID,
		)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.LimitWithBuffer(0)
	}

	var rows []models.Locker
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) == limit {
		last := rows[limit-2]
		rows = rows[:limit-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return rows, next, nil
}

// LockerWithDistance pairs a locker row with its computed distance.
type LockerWithDistance struct {
	models.Locker
	DistanceKM float64 `gorm:"column:distance_km"`
}

// Nearby returns available lockers within radiusKM of the point, closest first.
// Distance uses the haversine formula evaluated in SQL.
func (r *Repository) Nearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]LockerWithDistance, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	const haversine = `6371 * acos(least(1.0,
		cos(radians(?)) * cos(radians(latitude)) * cos(radians(longitude) - radians(?)) +
		sin(radians(?)) * sin(radians(latitude))))`

	var rows []LockerWithDistance
	err := r.db.WithContext(ctx).
		Model(&models.Locker{}).
		Select("lockers.*, "+haversine+" AS distance_km", lat, lng, lat).
		Where("status = ?", enums.LockerStatusAvailable).
		Where(haversine+" <= ?", lat, lng, lat, radiusKM).
		Order("distance_km ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Neighborhoods aggregates locker counts per neighborhood.
func (r *Repository) Neighborhoods(ctx context.Context) ([]NeighborhoodCount, error) {
	var rows []NeighborhoodCount
	err := r.db.WithContext(ctx).
		Model(&models.Locker{}).
		Select(`address->>'neighborhood' AS neighborhood,
			count(*) AS total,
			count(*) FILTER (WHERE status = 'available') AS available`).
		Where("address->>'neighborhood' IS NOT NULL AND address->>'neighborhood' <> ''").
		Group("address->>'neighborhood'").
		Order("neighborhood ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountGrouped aggregates locker counts by the given column.
func (r *Repository) CountGrouped(ctx context.Context, column string) (map[string]int64, error) {
	type bucket struct {
		Key   string `gorm:"column:key"`
		Total int64  `gorm:"column:total"`
	}
	var rows []bucket
	err := r.db.WithContext(ctx).
		Model(&models.Locker{}).
		Select(column + " AS key, count(*) AS total").
		Group(column).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Total
	}
	return out, nil
}

// TransitionStatus flips a locker between states only when it still holds the
// expected one. Zero rows affected means another writer got there first.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.LockerStatus) (int64, error) {
	return r.transition(r.db.WithContext(ctx), id, from, to)
}

// TransitionStatusWithTx is TransitionStatus inside the provided transaction.
func (r *Repository) TransitionStatusWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.LockerStatus) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	return r.transition(tx, id, from, to)
}

func (r *Repository) transition(db *gorm.DB, id uuid.UUID, from, to enums.LockerStatus) (int64, error) {
	res := db.Model(&models.Locker{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// RecordUsageWithTx bumps the usage stats when a rental activates.
func (r *Repository) RecordUsageWithTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Locker{}).
		Where("id = ?", id).
		Update("stats", gorm.Expr(`jsonb_set(
			jsonb_set(stats, '{total_reservations}',
				(coalesce((stats->>'total_reservations')::int, 0) + 1)::text::jsonb),
			'{last_used}', to_jsonb(now()))`)).Error
}

// HasReservations reports whether the locker appears in any reservation row.
func (r *Repository) HasReservations(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("locker_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
