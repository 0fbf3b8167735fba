package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/taxi-dashboard/internal/models"
)

// Times are written as text in this layout so that sqlite3 compares them
// correctly and postgres casts them to TIMESTAMP.
const sqlTimeLayout = "2006-01-02 15:04:05"

const tripColumns = "id, pickup_datetime, dropoff_datetime, pickup_location_id, dropoff_location_id"

// SQLStore implements TripStore on postgres (lib/pq) or sqlite3.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return NewSQLStoreFromDB(db, driver), nil
}

// NewSQLStoreFromDB wraps an open handle; driver selects the SQL dialect.
func NewSQLStoreFromDB(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the zones and trips tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS zones (
			location_id INTEGER PRIMARY KEY,
			borough TEXT NOT NULL DEFAULT '',
			zone_name TEXT NOT NULL DEFAULT '',
			service_zone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			` + idCol + `,
			pickup_datetime TIMESTAMP NOT NULL,
			dropoff_datetime TIMESTAMP NOT NULL,
			pickup_location_id INTEGER NOT NULL,
			dropoff_location_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS trips_pickup_idx ON trips (pickup_location_id, pickup_datetime)`,
		`CREATE INDEX IF NOT EXISTS trips_dropoff_idx ON trips (dropoff_location_id, dropoff_datetime)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Zones(ctx context.Context) ([]models.Zone, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT location_id, borough, zone_name, service_zone FROM zones ORDER BY location_id")
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	out := make([]models.Zone, 0)
	for rows.Next() {
		var z models.Zone
		if err := rows.Scan(&z.LocationID, &z.Borough, &z.ZoneName, &z.ServiceZone); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *SQLStore) TopZones(ctx context.Context, side models.Side, limit int) ([]models.TopZone, error) {
	locCol, _ := sideColumns(side)
	q := s.rebind("SELECT z.zone_name, COUNT(*) AS trip_count FROM trips t JOIN zones z ON z.location_id = t." + locCol +
		" GROUP BY z.zone_name ORDER BY trip_count DESC, z.zone_name ASC LIMIT ?")
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query top zones: %w", err)
	}
	defer rows.Close()

	out := make([]models.TopZone, 0, limit)
	for rows.Next() {
		var tz models.TopZone
		if err := rows.Scan(&tz.ZoneName, &tz.Count); err != nil {
			return nil, fmt.Errorf("scan top zone: %w", err)
		}
		out = append(out, tz)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountTrips(ctx context.Context, zoneID int, side models.Side, from, to time.Time) (int64, error) {
	locCol, timeCol := sideColumns(side)
	q := s.rebind("SELECT COUNT(*) FROM trips WHERE " + locCol + " = ? AND " + timeCol + " BETWEEN ? AND ?")
	var n int64
	if err := s.db.QueryRowContext(ctx, q, zoneID, sqlTime(from), sqlTime(to)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s trips: %w", side, err)
	}
	return n, nil
}

func (s *SQLStore) FindTrips(ctx context.Context, f TripFilter, p PageRequest) ([]models.Trip, int64, error) {
	where, args := f.sqlWhere()

	var total int64
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM trips"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trips: %w", err)
	}

	q := s.rebind("SELECT " + tripColumns + " FROM trips" + where + " ORDER BY " + orderClause(p) + " LIMIT ? OFFSET ?")
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Size, p.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	out := make([]models.Trip, 0, p.Size)
	for rows.Next() {
		var t models.Trip
		if err := rows.Scan(&t.ID, &t.PickupDateTime.Time, &t.DropoffDateTime.Time, &t.PickupLocationID, &t.DropoffLocationID); err != nil {
			return nil, 0, fmt.Errorf("scan trip: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *SQLStore) SaveZones(ctx context.Context, zones []models.Zone) error {
	q := s.rebind("INSERT INTO zones (location_id, borough, zone_name, service_zone) VALUES (?, ?, ?, ?) " +
		"ON CONFLICT (location_id) DO UPDATE SET borough = excluded.borough, zone_name = excluded.zone_name, service_zone = excluded.service_zone")
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, z := range zones {
			if _, err := tx.ExecContext(ctx, q, z.LocationID, z.Borough, z.ZoneName, z.ServiceZone); err != nil {
				return fmt.Errorf("insert zone %d: %w", z.LocationID, err)
			}
		}
		return nil
	})
}

// SaveTrips inserts trips in one transaction. Trips carrying an id keep it
// and are ignored if that id already exists; others get a generated id.
func (s *SQLStore) SaveTrips(ctx context.Context, trips []models.Trip) error {
	withID := s.rebind("INSERT INTO trips (" + tripColumns + ") VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING")
	withoutID := s.rebind("INSERT INTO trips (pickup_datetime, dropoff_datetime, pickup_location_id, dropoff_location_id) VALUES (?, ?, ?, ?)")
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range trips {
			var err error
			if t.ID != 0 {
				_, err = tx.ExecContext(ctx, withID, t.ID, sqlTime(t.PickupDateTime.Time), sqlTime(t.DropoffDateTime.Time), t.PickupLocationID, t.DropoffLocationID)
			} else {
				_, err = tx.ExecContext(ctx, withoutID, sqlTime(t.PickupDateTime.Time), sqlTime(t.DropoffDateTime.Time), t.PickupLocationID, t.DropoffLocationID)
			}
			if err != nil {
				return fmt.Errorf("insert trip: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) ZoneCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "zones")
}

func (s *SQLStore) TripCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "trips")
}

func (s *SQLStore) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f TripFilter) sqlWhere() (string, []any) {
	var conds []string
	var args []any
	if f.PickupLocationID != 0 {
		conds = append(conds, "pickup_location_id = ?")
		args = append(args, f.PickupLocationID)
	}
	if f.DropoffLocationID != 0 {
		conds = append(conds, "dropoff_location_id = ?")
		args = append(args, f.DropoffLocationID)
	}
	if !f.PickupDate.IsZero() {
		from, to := DayBounds(f.PickupDate)
		conds = append(conds, "pickup_datetime BETWEEN ? AND ?")
		args = append(args, sqlTime(from), sqlTime(to))
	}
	if !f.DropoffDate.IsZero() {
		from, to := DayBounds(f.DropoffDate)
		conds = append(conds, "dropoff_datetime BETWEEN ? AND ?")
		args = append(args, sqlTime(from), sqlTime(to))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(p PageRequest) string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	switch p.Sort {
	case SortByPickup:
		return "pickup_datetime " + dir + ", id ASC"
	case SortByDropoff:
		return "dropoff_datetime " + dir + ", id ASC"
	default:
		return "id " + dir
	}
}

func sideColumns(side models.Side) (location, at string) {
	if side == models.SideDropoff {
		return "dropoff_location_id", "dropoff_datetime"
	}
	return "pickup_location_id", "pickup_datetime"
}

func sqlTime(t time.Time) string { return t.Format(sqlTimeLayout) }
