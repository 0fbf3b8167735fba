package storage

import (
	"context"
	"fmt"
)

// Open returns the store selected by driver ("memory", "postgres" or
// "sqlite3") and a func that releases it. SQL stores are migrated when
// migrate is set.
func Open(ctx context.Context, driver, dsn string, migrate bool) (TripStore, func() error, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "postgres", "sqlite3":
		s, err := NewSQLStore(ctx, driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
