package views

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/example/taxi-dashboard/internal/models"
)

const MsgZonesFailed = "Failed to load zones"

type ZoneLister interface {
	GetZones(ctx context.Context) ([]models.Zone, error)
}

// ZoneDirectory holds the zone list for the filter selectors. It is loaded
// once per mount and never retried.
type ZoneDirectory struct {
	lister ZoneLister
	logger *slog.Logger
	once   sync.Once

	mu      sync.RWMutex
	loading bool
	zones   []models.Zone
	err     string
}

func NewZoneDirectory(lister ZoneLister, logger *slog.Logger) *ZoneDirectory {
	return &ZoneDirectory{lister: lister, logger: logger, loading: true, zones: []models.Zone{}}
}

// Load fetches the zone list. Only the first call does any work.
func (d *ZoneDirectory) Load(ctx context.Context) {
	d.once.Do(func() {
		zones, err := d.lister.GetZones(ctx)
		d.mu.Lock()
		defer d.mu.Unlock()
		d.loading = false
		if err != nil {
			d.logger.Error("error loading zones", "error", err)
			d.err = MsgZonesFailed
			d.zones = []models.Zone{}
			return
		}
		if zones == nil {
			zones = []models.Zone{}
		}
		d.zones = zones
		d.logger.Debug("zones loaded", "count", len(zones))
	})
}

func (d *ZoneDirectory) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loading
}

func (d *ZoneDirectory) Err() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Zones returns a copy of the loaded zones in backend order.
func (d *ZoneDirectory) Zones() []models.Zone {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Zone, len(d.zones))
	copy(out, d.zones)
	return out
}

// Name resolves a location id to its zone name, falling back to the id.
func (d *ZoneDirectory) Name(id int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, z := range d.zones {
		if z.LocationID == id {
			return z.ZoneName
		}
	}
	return strconv.Itoa(id)
}
