package views

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/taxi-dashboard/internal/models"
)

const (
	MsgTopZonesFailed    = "Failed to load top zones"
	MsgSelectZoneAndDate = "Please select a zone and a date"
	MsgSummaryFailed     = "Failed to load trip summary"
)

type TopZoneLister interface {
	GetTopZones(ctx context.Context, orderBy string) ([]models.TopZone, error)
}

type TopZonesState struct {
	OrderBy string           `json:"orderBy"`
	Zones   []models.TopZone `json:"zones"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
}

// TopZones ranks zones by pickup or dropoff volume. The ranking comes from the
// backend and is shown as received.
type TopZones struct {
	client TopZoneLister
	logger *slog.Logger

	mu    sync.Mutex
	state TopZonesState
	seq   uint64
}

func NewTopZones(client TopZoneLister, logger *slog.Logger) *TopZones {
	return &TopZones{
		client: client,
		logger: logger,
		state:  TopZonesState{OrderBy: string(models.SidePickup), Zones: []models.TopZone{}},
	}
}

// SetOrderBy switches between "pickup" and "dropoff" and reloads.
func (v *TopZones) SetOrderBy(ctx context.Context, orderBy string) error {
	orderBy = strings.ToLower(strings.TrimSpace(orderBy))
	if orderBy != string(models.SidePickup) && orderBy != string(models.SideDropoff) {
		return fmt.Errorf("unknown orderBy %q", orderBy)
	}
	v.mu.Lock()
	v.state.OrderBy = orderBy
	v.mu.Unlock()
	v.Load(ctx)
	return nil
}

// Load fetches the ranking for the current order. A load superseded by a
// newer one does not touch the state.
func (v *TopZones) Load(ctx context.Context) {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	orderBy := v.state.OrderBy
	v.state.Loading = true
	v.state.Error = ""
	v.mu.Unlock()

	zones, err := v.client.GetTopZones(ctx, orderBy)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		return
	}
	v.state.Loading = false
	if err != nil {
		v.logger.Error("error loading top zones", "error", err, "orderBy", orderBy)
		v.state.Error = MsgTopZonesFailed
		v.state.Zones = []models.TopZone{}
		return
	}
	if zones == nil {
		zones = []models.TopZone{}
	}
	v.state.Zones = zones
}

func (v *TopZones) State() TopZonesState {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	s.Zones = append([]models.TopZone(nil), v.state.Zones...)
	return s
}

type ZoneSummaryGetter interface {
	GetZoneTrips(ctx context.Context, zoneID, date string) (models.TripSummary, error)
}

type ZoneTripsState struct {
	ZoneID  string              `json:"zoneId"`
	Date    string              `json:"date"`
	Summary *models.TripSummary `json:"summary,omitempty"`
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
}

// ZoneTrips looks up pickup/dropoff counts for one zone on one date.
type ZoneTrips struct {
	client ZoneSummaryGetter
	logger *slog.Logger

	mu    sync.Mutex
	state ZoneTripsState
	seq   uint64
}

func NewZoneTrips(client ZoneSummaryGetter, logger *slog.Logger) *ZoneTrips {
	return &ZoneTrips{client: client, logger: logger}
}

// Submit records the selection and fetches its summary. An incomplete
// selection is reported without contacting the backend.
func (v *ZoneTrips) Submit(ctx context.Context, zoneID, date string) {
	zoneID, date = strings.TrimSpace(zoneID), strings.TrimSpace(date)

	v.mu.Lock()
	v.state.ZoneID = zoneID
	v.state.Date = date
	if zoneID == "" || date == "" {
		v.seq++
		v.state.Loading = false
		v.state.Summary = nil
		v.state.Error = MsgSelectZoneAndDate
		v.mu.Unlock()
		return
	}
	v.seq++
	seq := v.seq
	v.state.Loading = true
	v.state.Error = ""
	v.state.Summary = nil
	v.mu.Unlock()

	summary, err := v.client.GetZoneTrips(ctx, zoneID, date)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		return
	}
	v.state.Loading = false
	if err != nil {
		v.logger.Error("error loading trip summary", "error", err, "zone", zoneID, "date", date)
		v.state.Error = MsgSummaryFailed
		v.state.Summary = nil
		return
	}
	v.state.Summary = &summary
}

func (v *ZoneTrips) State() ZoneTripsState {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	if s.Summary != nil {
		cp := *s.Summary
		s.Summary = &cp
	}
	return s
}
