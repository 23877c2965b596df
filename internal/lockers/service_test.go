package lockers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casierlabs/casier-backend/pkg/db/models"
	"github.com/casierlabs/casier-backend/pkg/enums"
	pkgerrors "github.com/casierlabs/casier-backend/pkg/errors"
	"github.com/casierlabs/casier-backend/pkg/pagination"
	"github.com/casierlabs/casier-backend/pkg/types"
)

type fakeLockerRepo struct {
	byID        map[uuid.UUID]*models.Locker
	created     []*models.Locker
	updated     []*models.Locker
	deleted     []uuid.UUID
	hasHistory  bool
	nearbyRows  []LockerWithDistance
	lastFilters ListFilters
}

func (f *fakeLockerRepo) Create(_ context.Context, locker *models.Locker) error {
	locker.ID = uuid.New()
	f.created = append(f.created, locker)
	return nil
}

func (f *fakeLockerRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Locker, error) {
	if l, ok := f.byID[id]; ok {
		return l, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLockerRepo) Update(_ context.Context, locker *models.Locker) error {
	f.updated = append(f.updated, locker)
	return nil
}

func (f *fakeLockerRepo) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	f.deleted = append(f.deleted, id)
	if _, ok := f.byID[id]; !ok {
		return 0, nil
	}
	return 1, nil
}

func (f *fakeLockerRepo) List(_ context.Context, filters ListFilters) ([]models.Locker, *pagination.Cursor, error) {
	f.lastFilters = filters
	var rows []models.Locker
	for _, l := range f.byID {
		rows = append(rows, *l)
	}
	return rows, nil, nil
}

func (f *fakeLockerRepo) Nearby(_ context.Context, _, _, _ float64, _ int) ([]LockerWithDistance, error) {
	return f.nearbyRows, nil
}

func (f *fakeLockerRepo) Neighborhoods(_ context.Context) ([]NeighborhoodCount, error) {
	return []NeighborhoodCount{{Neighborhood: "Centre", Total: 3, Available: 2}}, nil
}

func (f *fakeLockerRepo) CountGrouped(_ context.Context, column string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, l := range f.byID {
		switch column {
		case "status":
			out[string(l.Status)]++
		case "size":
			out[string(l.Size)]++
		case "address->>'city'":
			out[l.Address.City]++
		}
	}
	return out, nil
}

func (f *fakeLockerRepo) HasReservations(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.hasHistory, nil
}

func testAddress() types.Address {
	return types.Address{Street: "1 rue de la Gare", City: "Lyon", PostalCode: "69002", Neighborhood: "Centre"}
}

func newTestLockerService(t *testing.T, repo *fakeLockerRepo) Service {
	t.Helper()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateLockerDefaultsToAvailable(t *testing.T) {
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{}}
	svc := newTestLockerService(t, repo)

	summary, err := svc.Create(context.Background(), CreateLockerDTO{
		Number:      "A-12",
		Size:        "medium",
		PricePerDay: "4.50",
		Address:     testAddress(),
		Latitude:    45.75,
		Longitude:   4.85,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if summary.Status != enums.LockerStatusAvailable {
		t.Fatalf("expected available, got %s", summary.Status)
	}
	if summary.PricePerDay.String() != "4.5" {
		t.Fatalf("unexpected price %s", summary.PricePerDay)
	}
}

func TestCreateLockerRejectsBadPrice(t *testing.T) {
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{}}
	svc := newTestLockerService(t, repo)

	for _, price := range []string{"", "abc", "-2", "0"} {
		_, err := svc.Create(context.Background(), CreateLockerDTO{
			Number:      "A-1",
			Size:        "small",
			PricePerDay: price,
			Address:     testAddress(),
		})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("price %q: expected validation error, got %v", price, err)
		}
	}
}

func TestUpdateLockerRefusesLeavingReserved(t *testing.T) {
	id := uuid.New()
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{
		id: {ID: id, Number: "A-1", Size: enums.LockerSizeSmall, Status: enums.LockerStatusReserved},
	}}
	svc := newTestLockerService(t, repo)

	status := "available"
	_, err := svc.Update(context.Background(), id, UpdateLockerDTO{Status: &status})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestDeleteLockerWithHistory(t *testing.T) {
	id := uuid.New()
	repo := &fakeLockerRepo{
		byID: map[uuid.UUID]*models.Locker{
			id: {ID: id, Status: enums.LockerStatusAvailable},
		},
		hasHistory: true,
	}
	svc := newTestLockerService(t, repo)

	err := svc.Delete(context.Background(), id)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Fatal("delete should not reach the repository")
	}
}

func TestDeleteReservedLocker(t *testing.T) {
	id := uuid.New()
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{
		id: {ID: id, Status: enums.LockerStatusReserved},
	}}
	svc := newTestLockerService(t, repo)

	err := svc.Delete(context.Background(), id)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListValidatesEnums(t *testing.T) {
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{}}
	svc := newTestLockerService(t, repo)

	_, err := svc.List(context.Background(), ListParams{Status: "huge"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := svc.List(context.Background(), ListParams{Status: "available", Size: "small", City: " Lyon "}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lastFilters.Status == nil || *repo.lastFilters.Status != enums.LockerStatusAvailable {
		t.Fatal("status filter not forwarded")
	}
	if repo.lastFilters.City != "Lyon" {
		t.Fatalf("city filter not forwarded, got %q", repo.lastFilters.City)
	}
}

func TestNearbyClampsRadiusAndSetsDistance(t *testing.T) {
	id := uuid.New()
	repo := &fakeLockerRepo{
		byID: map[uuid.UUID]*models.Locker{},
		nearbyRows: []LockerWithDistance{
			{Locker: models.Locker{ID: id, Status: enums.LockerStatusAvailable}, DistanceKM: 0.4},
		},
	}
	svc := newTestLockerService(t, repo)

	items, err := svc.Nearby(context.Background(), NearbyParams{Latitude: 45.75, Longitude: 4.85, RadiusKM: 9999})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].DistanceKM == nil || *items[0].DistanceKM != 0.4 {
		t.Fatal("distance not propagated")
	}

	_, err = svc.Nearby(context.Background(), NearbyParams{Latitude: 91, Longitude: 0})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatsZeroFillsStatuses(t *testing.T) {
	repo := &fakeLockerRepo{byID: map[uuid.UUID]*models.Locker{
		uuid.New(): {Status: enums.LockerStatusAvailable, Size: enums.LockerSizeSmall, Address: types.Address{City: "Lyon"}},
		uuid.New(): {Status: enums.LockerStatusAvailable, Size: enums.LockerSizeLarge, Address: types.Address{City: "Lyon"}},
		uuid.New(): {Status: enums.LockerStatusReserved, Size: enums.LockerSizeSmall, Address: types.Address{City: "Paris"}},
	}}
	svc := newTestLockerService(t, repo)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Available != 2 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if _, ok := stats.ByStatus["maintenance"]; !ok {
		t.Fatal("missing statuses should be zero-filled")
	}
	if stats.BySize["small"] != 2 {
		t.Fatalf("expected 2 small lockers, got %d", stats.BySize["small"])
	}
	if stats.ByCity["Lyon"] != 2 || stats.ByCity["Paris"] != 1 {
		t.Fatalf("unexpected city breakdown: %+v", stats.ByCity)
	}
}
