package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
)

// Repository handles reservation persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to reservation operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithTx persists a reservation inside the provided transaction.
func (r *Repository) CreateWithTx(tx *gorm.DB, reservation *models.Reservation) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if reservation == nil {
		return fmt.Errorf("reservation is required")
	}
	return tx.Create(reservation).Error
}

// FindByID loads a reservation with its locker.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Locker").
		Where("id = ?", id).
		First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindBySessionID loads a reservation by its checkout session reference.
func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Locker").
		Preload("User").
		Where("stripe_session_id = ?", sessionID).
		First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ListByUser returns the user's reservations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Locker").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// HasOpenForUserWithTx reports whether the user already holds an open
// reservation on any locker. Open means pending or active with an end date
// still in the future; rows the sweeps have not closed yet do not count once
// their window has passed.
func (r *Repository) HasOpenForUserWithTx(tx *gorm.DB, userID uuid.UUID, now time.Time) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.Reservation{}).
		Where("user_id = ?", userID).
		Where("status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusPending,
			enums.ReservationStatusActive,
		}).
		Where("end_date > ?", now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasOpenForLockerWithTx reports whether any open reservation references the
// locker. A pending one still has a live checkout session, so the locker is
// spoken for even though its row still says available.
func (r *Repository) HasOpenForLockerWithTx(tx *gorm.DB, lockerID uuid.UUID, now time.Time) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.Reservation{}).
		Where("locker_id = ?", lockerID).
		Where("status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusPending,
			enums.ReservationStatusActive,
		}).
		Where("end_date > ?", now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetSession records the checkout session and customer references.
func (r *Repository) SetSession(ctx context.Context, id uuid.UUID, sessionID, customerID string) error {
	updates := map[string]any{"stripe_session_id": sessionID}
	if customerID != "" {
		updates["stripe_customer_id"] = customerID
	}
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TransitionStatusWithTx flips a reservation between states only when it still
// holds the expected one. Zero rows affected means another writer got there first.
func (r *Repository) TransitionStatusWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.ReservationStatus, extra map[string]any) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdatePaymentStatusIfWithTx flips the payment status only when it still
// holds the expected one, inside the caller's transaction so the flip commits
// together with the status change and locker release it accompanies.
func (r *Repository) UpdatePaymentStatusIfWithTx(tx *gorm.DB, id uuid.UUID, from, to enums.PaymentStatus) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	res := tx.Model(&models.Reservation{}).
		Where("id = ? AND payment_status = ?", id, from).
		Update("payment_status", to)
	return res.RowsAffected, res.Error
}

// DeleteWithTx removes a reservation row inside the provided transaction.
func (r *Repository) DeleteWithTx(tx *gorm.DB, id uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	res := tx.Delete(&models.Reservation{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// expiredRow carries the ids needed to release a locker after completion.
type expiredRow struct {
	ID       uuid.UUID `gorm:"column:id"`
	LockerID uuid.UUID `gorm:"column:locker_id"`
}

// CompleteExpiredWithTx marks every active reservation whose window has closed
// as completed and returns the affected locker ids so the caller can release them.
func (r *Repository) CompleteExpiredWithTx(tx *gorm.DB, now time.Time) ([]uuid.UUID, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var rows []expiredRow
	err := tx.Raw(`
		UPDATE reservations
		SET status = 'completed', updated_at = now()
		WHERE status = 'active' AND end_date <= ?
		RETURNING id, locker_id`, now).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	lockerIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		lockerIDs = append(lockerIDs, row.LockerID)
	}
	return lockerIDs, nil
}

// ExpireStalePending marks pending reservations older than the cutoff as expired.
// These never held the locker, so nothing needs releasing.
func (r *Repository) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("status = ? AND created_at < ?", enums.ReservationStatusPending, cutoff).
		Update("status", enums.ReservationStatusExpired)
	return res.RowsAffected, res.Error
}

// DueReminders returns active reservations ending inside the lookahead window
// that have not been reminded yet, with user and locker loaded for the email.
func (r *Repository) DueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Locker").
		Preload("User").
		Where("status = ? AND reminder_sent = false", enums.ReservationStatusActive).
		Where("end_date > ? AND end_date <= ?", now, now.Add(lookahead)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkReminderSent flags the reservation once the reminder email went out.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND reminder_sent = false", id).
		Update("reminder_sent", true).Error
}

// ExportFilters narrows the rows returned for CSV exports.
type ExportFilters struct {
	Status        *enums.ReservationStatus
	PaymentStatus *enums.PaymentStatus
	UserID        *uuid.UUID
	From          *time.Time
	To            *time.Time
}

// ListForExport streams every reservation matching the filters, oldest first.
func (r *Repository) ListForExport(ctx context.Context, filters ExportFilters) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Preload("Locker").
		Preload("User").
		Model(&models.Reservation{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}

	var rows []models.Reservation
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByStatus aggregates reservation totals for the stats endpoint.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type bucket struct {
		Status string `gorm:"column:status"`
		Total  int64  `gorm:"column:total"`
	}
	var rows []bucket
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("status, count(*) AS total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
