package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/example/taxi-dashboard/internal/models"
)

func newMockStore(t *testing.T, driver string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStoreFromDB(db, driver), mock
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	if got := pg.rebind("a = ? AND b BETWEEN ? AND ?"); got != "a = $1 AND b BETWEEN $2 AND $3" {
		t.Fatalf("unexpected postgres query: %s", got)
	}
	lite := &SQLStore{driver: "sqlite3"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite3 query must be unchanged: %s", got)
	}
}

func TestSQLStoreCountTrips(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM trips WHERE dropoff_location_id = $1 AND dropoff_datetime BETWEEN $2 AND $3")).
		WithArgs(132, "2024-01-01 00:00:00", "2024-01-01 23:59:59").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	from, to := DayBounds(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC))
	n, err := s.CountTrips(context.Background(), 132, models.SideDropoff, from, to)
	if err != nil || n != 7 {
		t.Fatalf("got %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreTopZones(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN zones z ON z.location_id = t.pickup_location_id GROUP BY z.zone_name ORDER BY trip_count DESC, z.zone_name ASC LIMIT $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"zone_name", "trip_count"}).
			AddRow("JFK Airport", 40).
			AddRow("Midtown Center", 31))

	zones, err := s.TopZones(context.Background(), models.SidePickup, TopZonesLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(zones) != 2 || zones[0].ZoneName != "JFK Airport" || zones[0].Count != 40 {
		t.Fatalf("unexpected zones: %+v", zones)
	}
}

func TestSQLStoreFindTrips(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	f := TripFilter{PickupLocationID: 132, DropoffDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	where := " WHERE pickup_location_id = ? AND dropoff_datetime BETWEEN ? AND ?"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM trips" + where)).
		WithArgs(132, "2024-01-02 00:00:00", "2024-01-02 23:59:59").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	pickup := time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips" + where + " ORDER BY pickup_datetime DESC, id ASC LIMIT ? OFFSET ?")).
		WithArgs(132, "2024-01-02 00:00:00", "2024-01-02 23:59:59", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pickup_datetime", "dropoff_datetime", "pickup_location_id", "dropoff_location_id"}).
			AddRow(int64(41), pickup, pickup.Add(20*time.Minute), 132, 236))

	trips, total, err := s.FindTrips(context.Background(), f, PageRequest{Page: 1, Size: 2, Sort: SortByPickup, Desc: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(trips) != 1 || trips[0].ID != 41 || !trips[0].PickupDateTime.Equal(pickup) {
		t.Fatalf("unexpected result total=%d trips=%+v", total, trips)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreSaveTripsRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trips (pickup_datetime, dropoff_datetime, pickup_location_id, dropoff_location_id) VALUES ($1, $2, $3, $4)")).
		WithArgs("2024-01-01 08:00:00", "2024-01-01 08:30:00", 132, 236).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WithArgs(int64(9), "2024-01-01 09:00:00", "2024-01-01 09:30:00", 161, 236).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	trips := []models.Trip{
		{PickupDateTime: at("2024-01-01 08:00:00"), DropoffDateTime: at("2024-01-01 08:30:00"), PickupLocationID: 132, DropoffLocationID: 236},
		{ID: 9, PickupDateTime: at("2024-01-01 09:00:00"), DropoffDateTime: at("2024-01-01 09:30:00"), PickupLocationID: 161, DropoffLocationID: 236},
	}
	if err := s.SaveTrips(context.Background(), trips); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreSaveZonesUpserts(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (location_id) DO UPDATE SET borough = excluded.borough")).
		WithArgs(1, "EWR", "Newark Airport", "EWR").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.SaveZones(context.Background(), []models.Zone{{LocationID: 1, Borough: "EWR", ZoneName: "Newark Airport", ServiceZone: "EWR"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreMigrate(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS zones").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("id BIGSERIAL PRIMARY KEY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS trips_pickup_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS trips_dropoff_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
