package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/taxi-dashboard/internal/models"
)

// TripStore defines persistence and query operations for zones and trips.
type TripStore interface {
	Zones(ctx context.Context) ([]models.Zone, error)
	TopZones(ctx context.Context, side models.Side, limit int) ([]models.TopZone, error)
	CountTrips(ctx context.Context, zoneID int, side models.Side, from, to time.Time) (int64, error)
	FindTrips(ctx context.Context, f TripFilter, p PageRequest) ([]models.Trip, int64, error)
	SaveZones(ctx context.Context, zones []models.Zone) error
	SaveTrips(ctx context.Context, trips []models.Trip) error
	ZoneCount(ctx context.Context) (int64, error)
	TripCount(ctx context.Context) (int64, error)
}

// TripFilter restricts a trip search. Zero fields do not filter.
// Date filters match the whole calendar day of the pickup or dropoff.
type TripFilter struct {
	PickupLocationID  int
	DropoffLocationID int
	PickupDate        time.Time
	DropoffDate       time.Time
}

const (
	SortByID      = "id"
	SortByPickup  = "pickupDateTime"
	SortByDropoff = "dropoffDateTime"
)

const (
	DefaultPage   = 0
	DefaultSize   = 20
	MaxPageSize   = 100
	TopZonesLimit = 5
)

// PageRequest selects one page of a sorted result set.
type PageRequest struct {
	Page int
	Size int
	Sort string
	Desc bool
}

// ParseSort reads "field[,asc|desc]". An empty value sorts by id ascending.
func ParseSort(v string) (field string, desc bool, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return SortByID, false, nil
	}
	parts := strings.Split(v, ",")
	field = strings.TrimSpace(parts[0])
	switch field {
	case SortByID, SortByPickup, SortByDropoff:
	default:
		return "", false, fmt.Errorf("unsupported sort field %q", field)
	}
	if len(parts) > 2 {
		return "", false, fmt.Errorf("malformed sort %q", v)
	}
	if len(parts) == 2 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "asc", "":
		case "desc":
			desc = true
		default:
			return "", false, fmt.Errorf("unsupported sort direction %q", parts[1])
		}
	}
	return field, desc, nil
}

// DayBounds returns the first and last instant of the calendar day of t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}

// SideFromOrderBy maps a top-zones orderBy value to a side; only "dropoff"
// (any case) selects the dropoff side.
func SideFromOrderBy(orderBy string) models.Side {
	if strings.EqualFold(strings.TrimSpace(orderBy), string(models.SideDropoff)) {
		return models.SideDropoff
	}
	return models.SidePickup
}

func (p PageRequest) offset() int { return p.Page * p.Size }

type MemoryStore struct {
	mu     sync.RWMutex
	zones  map[int]models.Zone
	trips  []models.Trip
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{zones: make(map[int]models.Zone), nextID: 1}
}

func (m *MemoryStore) Zones(ctx context.Context) ([]models.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Zone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (m *MemoryStore) TopZones(ctx context.Context, side models.Side, limit int) ([]models.TopZone, error) {
	m.mu.RLock()
	counts := make(map[string]int64)
	for _, t := range m.trips {
		z, ok := m.zones[locationFor(t, side)]
		if !ok {
			continue
		}
		counts[z.ZoneName]++
	}
	m.mu.RUnlock()

	out := make([]models.TopZone, 0, len(counts))
	for name, c := range counts {
		out = append(out, models.TopZone{ZoneName: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ZoneName < out[j].ZoneName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountTrips(ctx context.Context, zoneID int, side models.Side, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, t := range m.trips {
		if locationFor(t, side) != zoneID {
			continue
		}
		if between(timeFor(t, side), from, to) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindTrips(ctx context.Context, f TripFilter, p PageRequest) ([]models.Trip, int64, error) {
	m.mu.RLock()
	matched := make([]models.Trip, 0)
	for _, t := range m.trips {
		if f.matches(t) {
			matched = append(matched, t)
		}
	}
	m.mu.RUnlock()

	less := func(a, b models.Trip) bool { return a.ID < b.ID }
	switch p.Sort {
	case SortByPickup:
		less = func(a, b models.Trip) bool { return a.PickupDateTime.Before(b.PickupDateTime.Time) }
	case SortByDropoff:
		less = func(a, b models.Trip) bool { return a.DropoffDateTime.Before(b.DropoffDateTime.Time) }
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if p.Desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	total := int64(len(matched))
	start := p.offset()
	if start >= len(matched) {
		return []models.Trip{}, total, nil
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) SaveZones(ctx context.Context, zones []models.Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, z := range zones {
		m.zones[z.LocationID] = z
	}
	return nil
}

// SaveTrips appends trips, assigning ids to those without one. A trip whose
// id is already stored is skipped.
func (m *MemoryStore) SaveTrips(ctx context.Context, trips []models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]struct{}, len(m.trips))
	for _, t := range m.trips {
		seen[t.ID] = struct{}{}
	}
	for _, t := range trips {
		if t.ID == 0 {
			t.ID = m.nextID
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
		m.trips = append(m.trips, t)
	}
	return nil
}

func (m *MemoryStore) ZoneCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.zones)), nil
}

func (m *MemoryStore) TripCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.trips)), nil
}

func (f TripFilter) matches(t models.Trip) bool {
	if f.PickupLocationID != 0 && t.PickupLocationID != f.PickupLocationID {
		return false
	}
	if f.DropoffLocationID != 0 && t.DropoffLocationID != f.DropoffLocationID {
		return false
	}
	if !f.PickupDate.IsZero() {
		from, to := DayBounds(f.PickupDate)
		if !between(t.PickupDateTime.Time, from, to) {
			return false
		}
	}
	if !f.DropoffDate.IsZero() {
		from, to := DayBounds(f.DropoffDate)
		if !between(t.DropoffDateTime.Time, from, to) {
			return false
		}
	}
	return true
}

func locationFor(t models.Trip, side models.Side) int {
	if side == models.SideDropoff {
		return t.DropoffLocationID
	}
	return t.PickupLocationID
}

func timeFor(t models.Trip, side models.Side) time.Time {
	if side == models.SideDropoff {
		return t.DropoffDateTime.Time
	}
	return t.PickupDateTime.Time
}

func between(v, from, to time.Time) bool {
	return !v.Before(from) && !v.After(to)
}
