package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	"github.com/casierlabs/casier-backend/pkg/types"
)

func setupReservationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL DEFAULT 'user',
  stripe_customer_id TEXT,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	lockers := `
CREATE TABLE IF NOT EXISTS lockers (
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL UNIQUE,
  size TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  price_per_day TEXT NOT NULL,
  address TEXT NOT NULL,
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  partner TEXT,
  accessible INTEGER NOT NULL DEFAULT 0,
  stats TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`
	reservations := `
CREATE TABLE IF NOT EXISTS reservations (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  locker_id TEXT NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  duration_hours INTEGER NOT NULL,
  total_price TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  stripe_session_id TEXT UNIQUE,
  stripe_customer_id TEXT,
  stripe_payment_intent_id TEXT,
  reminder_sent INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(users).Error)
	require.NoError(t, db.Exec(lockers).Error)
	require.NoError(t, db.Exec(reservations).Error)

	// table and rows persist across tests on the shared in-memory DB
	require.NoError(t, db.Exec("DELETE FROM reservations").Error)
	require.NoError(t, db.Exec("DELETE FROM lockers").Error)
	require.NoError(t, db.Exec("DELETE FROM users").Error)
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "not-a-real-hash",
		FirstName:    "Marie",
		LastName:     "Durand",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func newTestLocker(t *testing.T, db *gorm.DB, number string) *models.Locker {
	t.Helper()

	locker := &models.Locker{
		ID:          uuid.New(),
		Number:      number,
		Size:        enums.LockerSizeMedium,
		Status:      enums.LockerStatusAvailable,
		PricePerDay: decimal.RequireFromString("4.50"),
		Address: types.Address{
			Street:       "12 rue de la Gare",
			City:         "Paris",
			PostalCode:   "75010",
			Neighborhood: "Gare du Nord",
		},
		Latitude:  48.8809,
		Longitude: 2.3553,
	}
	require.NoError(t, db.Create(locker).Error)
	return locker
}

func createTestReservation(t *testing.T, db *gorm.DB, user *models.User, locker *models.Locker, status enums.ReservationStatus, start, end time.Time) *models.Reservation {
	t.Helper()

	reservation := &models.Reservation{
		ID:            uuid.New(),
		UserID:        user.ID,
		LockerID:      locker.ID,
		StartDate:     start,
		EndDate:       end,
		DurationHours: int64(end.Sub(start).Hours()),
		TotalPrice:    decimal.RequireFromString("9.00"),
		Status:        status,
		CreatedAt:     start,
		UpdatedAt:     start,
	}
	require.NoError(t, db.Create(reservation).Error)
	return reservation
}

func TestRepositoryListByUser_newestFirstWithLocker(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	other := newTestUser(t, db, "paul@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	older := createTestReservation(t, db, user, locker, enums.ReservationStatusCompleted, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	newer := createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(23*time.Hour))
	createTestReservation(t, db, other, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(time.Hour))

	rows, err := repo.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Equal(t, older.ID, rows[1].ID)
	require.NotNil(t, rows[0].Locker)
	assert.Equal(t, "A-12", rows[0].Locker.Number)
}

func TestRepositoryHasOpenForUser(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	marie := newTestUser(t, db, "marie@example.com")
	paul := newTestUser(t, db, "paul@example.com")
	lockerA := newTestLocker(t, db, "A-12")
	lockerB := newTestLocker(t, db, "B-03")

	now := time.Now().UTC()
	createTestReservation(t, db, marie, lockerA, enums.ReservationStatusPending, now, now.Add(24*time.Hour))

	// marie's pending rental on A-12 blocks her everywhere, not just on A-12
	open, err := repo.HasOpenForUserWithTx(db, marie.ID, now)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = repo.HasOpenForUserWithTx(db, paul.ID, now)
	require.NoError(t, err)
	assert.False(t, open)

	// a rental past its end date no longer counts, even if still marked active
	createTestReservation(t, db, paul, lockerB, enums.ReservationStatusActive, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	open, err = repo.HasOpenForUserWithTx(db, paul.ID, now)
	require.NoError(t, err)
	assert.False(t, open, "lapsed reservation should not count as open")
}

func TestRepositoryHasOpenForLocker(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	marie := newTestUser(t, db, "marie@example.com")
	lockerA := newTestLocker(t, db, "A-12")
	lockerB := newTestLocker(t, db, "B-03")

	now := time.Now().UTC()
	createTestReservation(t, db, marie, lockerA, enums.ReservationStatusPending, now, now.Add(24*time.Hour))
	createTestReservation(t, db, marie, lockerB, enums.ReservationStatusCompleted, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	open, err := repo.HasOpenForLockerWithTx(db, lockerA.ID, now)
	require.NoError(t, err)
	assert.True(t, open, "pending reservation holds the locker before payment")

	open, err = repo.HasOpenForLockerWithTx(db, lockerB.ID, now)
	require.NoError(t, err)
	assert.False(t, open, "completed reservation should not count as open")
}

func TestRepositoryUpdatePaymentStatusIf_compareAndSwap(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	reservation := createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now, now.Add(24*time.Hour))
	require.NoError(t, db.Model(&models.Reservation{}).
		Where("id = ?", reservation.ID).
		Update("payment_status", enums.PaymentStatusPaid).Error)

	affected, err := repo.UpdatePaymentStatusIfWithTx(db, reservation.ID, enums.PaymentStatusPaid, enums.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.UpdatePaymentStatusIfWithTx(db, reservation.ID, enums.PaymentStatusPaid, enums.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.Zero(t, affected, "a second flip from the same origin state must not apply")
}

func TestRepositoryTransitionStatus_compareAndSwap(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	reservation := createTestReservation(t, db, user, locker, enums.ReservationStatusPending, now, now.Add(24*time.Hour))

	affected, err := repo.TransitionStatusWithTx(db, reservation.ID, enums.ReservationStatusPending, enums.ReservationStatusActive, map[string]any{
		"payment_status": enums.PaymentStatusPaid,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// a second transition from the same origin state must not apply
	affected, err = repo.TransitionStatusWithTx(db, reservation.ID, enums.ReservationStatusPending, enums.ReservationStatusCancelled, nil)
	require.NoError(t, err)
	assert.Zero(t, affected)

	reloaded, err := repo.FindByID(context.Background(), reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusActive, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)
}

func TestRepositoryExpireStalePending(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	stale := createTestReservation(t, db, user, locker, enums.ReservationStatusPending, now.Add(-2*time.Hour), now.Add(22*time.Hour))
	fresh := createTestReservation(t, db, user, locker, enums.ReservationStatusPending, now.Add(-5*time.Minute), now.Add(24*time.Hour))

	count, err := repo.ExpireStalePending(context.Background(), now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	expired, err := repo.FindByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusExpired, expired.Status)

	kept, err := repo.FindByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusPending, kept.Status)
}

func TestRepositoryDueReminders(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	due := createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now.Add(-23*time.Hour), now.Add(10*time.Minute))
	createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(23*time.Hour))

	rows, err := repo.DueReminders(context.Background(), now, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)
	require.NotNil(t, rows[0].User)
	assert.Equal(t, "marie@example.com", rows[0].User.Email)
	require.NotNil(t, rows[0].Locker)

	require.NoError(t, repo.MarkReminderSent(context.Background(), due.ID))

	rows, err = repo.DueReminders(context.Background(), now, 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, rows, "reminded reservation should drop out of the due set")
}

func TestRepositoryListForExport_filters(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	marie := newTestUser(t, db, "marie@example.com")
	paul := newTestUser(t, db, "paul@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	active := createTestReservation(t, db, marie, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(23*time.Hour))
	createTestReservation(t, db, marie, locker, enums.ReservationStatusCancelled, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	createTestReservation(t, db, paul, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(time.Hour))

	status := enums.ReservationStatusActive
	rows, err := repo.ListForExport(context.Background(), ExportFilters{Status: &status, UserID: &marie.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, active.ID, rows[0].ID)
	require.NotNil(t, rows[0].User)
	assert.Equal(t, "marie@example.com", rows[0].User.Email)

	rows, err = repo.ListForExport(context.Background(), ExportFilters{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRepositoryCountByStatus(t *testing.T) {
	db := setupReservationsTestDB(t)
	repo := NewRepository(db)

	user := newTestUser(t, db, "marie@example.com")
	locker := newTestLocker(t, db, "A-12")

	now := time.Now().UTC()
	createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now.Add(-time.Hour), now.Add(23*time.Hour))
	createTestReservation(t, db, user, locker, enums.ReservationStatusActive, now, now.Add(24*time.Hour))
	createTestReservation(t, db, user, locker, enums.ReservationStatusCompleted, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["active"])
	assert.Equal(t, int64(1), counts["completed"])
}
