package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/taxi-dashboard/internal/models"
)

const (
	DefaultBatchSize = 500
	tripTimeLayout   = "2006-01-02 15:04:05"
)

// Store is the part of storage.TripStore the loader writes through.
type Store interface {
	SaveZones(ctx context.Context, zones []models.Zone) error
	SaveTrips(ctx context.Context, trips []models.Trip) error
	ZoneCount(ctx context.Context) (int64, error)
	TripCount(ctx context.Context) (int64, error)
}

// Loader seeds an empty store from the zone lookup and trip data CSV files.
type Loader struct {
	store     Store
	logger    *slog.Logger
	BatchSize int
}

func New(store Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger, BatchSize: DefaultBatchSize}
}

// Seed loads each file only when its table is empty. A missing file is
// logged and skipped.
func (l *Loader) Seed(ctx context.Context, zonesPath, tripsPath string) error {
	if n, err := l.store.ZoneCount(ctx); err != nil {
		return fmt.Errorf("count zones: %w", err)
	} else if n > 0 {
		l.logger.Info("zones already loaded", "count", n)
	} else if err := l.loadFile(ctx, zonesPath, l.LoadZones); err != nil {
		return err
	}

	if n, err := l.store.TripCount(ctx); err != nil {
		return fmt.Errorf("count trips: %w", err)
	} else if n > 0 {
		l.logger.Info("trips already loaded", "count", n)
	} else if err := l.loadFile(ctx, tripsPath, l.LoadTrips); err != nil {
		return err
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, path string, load func(context.Context, io.Reader) (int, error)) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("seed file not found, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	l.logger.Info("loading seed file", "path", path)
	n, err := load(ctx, f)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.Info("seed file loaded", "path", path, "rows", n)
	return nil
}

// LoadZones reads LocationID,Borough,Zone,service_zone rows after a header.
func (l *Loader) LoadZones(ctx context.Context, r io.Reader) (int, error) {
	batch := make([]models.Zone, 0, l.batchSize())
	total := 0
	err := l.eachRecord(r, "zone", func(rec []string) error {
		if len(rec) < 3 {
			return fmt.Errorf("expected at least 3 fields, got %d", len(rec))
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return err
		}
		z := models.Zone{LocationID: id, Borough: rec[1], ZoneName: rec[2]}
		if len(rec) > 3 {
			z.ServiceZone = rec[3]
		}
		batch = append(batch, z)
		return nil
	}, func() error {
		if len(batch) < l.batchSize() {
			return nil
		}
		return l.flushZones(ctx, &batch, &total)
	})
	if err != nil {
		return total, err
	}
	return total, l.flushZones(ctx, &batch, &total)
}

// LoadTrips reads pickup,dropoff,PULocationID,DOLocationID rows after a header.
func (l *Loader) LoadTrips(ctx context.Context, r io.Reader) (int, error) {
	batch := make([]models.Trip, 0, l.batchSize())
	total := 0
	err := l.eachRecord(r, "trip", func(rec []string) error {
		if len(rec) < 4 {
			return fmt.Errorf("expected 4 fields, got %d", len(rec))
		}
		pickup, err := time.Parse(tripTimeLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return err
		}
		dropoff, err := time.Parse(tripTimeLayout, strings.TrimSpace(rec[1]))
		if err != nil {
			return err
		}
		pu, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return err
		}
		do, err := strconv.Atoi(strings.TrimSpace(rec[3]))
		if err != nil {
			return err
		}
		batch = append(batch, models.Trip{
			PickupDateTime:    models.LocalTime{Time: pickup},
			DropoffDateTime:   models.LocalTime{Time: dropoff},
			PickupLocationID:  pu,
			DropoffLocationID: do,
		})
		return nil
	}, func() error {
		if len(batch) < l.batchSize() {
			return nil
		}
		return l.flushTrips(ctx, &batch, &total)
	})
	if err != nil {
		return total, err
	}
	return total, l.flushTrips(ctx, &batch, &total)
}

// eachRecord skips the header, hands each row to parse and calls after once
// a row was accepted. Rows that fail to parse are logged and skipped.
func (l *Loader) eachRecord(r io.Reader, kind string, parse func([]string) error, after func() error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			l.logger.Warn("csv is empty", "kind", kind)
			return nil
		}
		return fmt.Errorf("read header: %w", err)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			l.logger.Warn("skipping unreadable record", "kind", kind, "error", err)
			continue
		}
		if err := parse(rec); err != nil {
			l.logger.Warn("skipping bad record", "kind", kind, "record", strings.Join(rec, ","), "error", err)
			continue
		}
		if err := after(); err != nil {
			return err
		}
	}
}

func (l *Loader) flushZones(ctx context.Context, batch *[]models.Zone, total *int) error {
	if len(*batch) == 0 {
		return nil
	}
	if err := l.store.SaveZones(ctx, *batch); err != nil {
		return fmt.Errorf("save zones: %w", err)
	}
	*total += len(*batch)
	*batch = (*batch)[:0]
	return nil
}

func (l *Loader) flushTrips(ctx context.Context, batch *[]models.Trip, total *int) error {
	if len(*batch) == 0 {
		return nil
	}
	if err := l.store.SaveTrips(ctx, *batch); err != nil {
		return fmt.Errorf("save trips: %w", err)
	}
	*total += len(*batch)
	*batch = (*batch)[:0]
	return nil
}

func (l *Loader) batchSize() int {
	if l.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return l.BatchSize
}
