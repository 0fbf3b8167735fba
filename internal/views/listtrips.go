package views

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/observability"
	"github.com/example/taxi-dashboard/internal/taxiapi"
)

const MsgTripsFailed = "Failed to load trips"

type TripLister interface {
	ListTrips(ctx context.Context, q taxiapi.TripQuery) (models.TripPage, error)
}

// ListState is a snapshot of the trip list view.
type ListState struct {
	Filter Filter          `json:"filters"`
	Sort   string          `json:"sort"`
	Cursor PageCursor      `json:"cursor"`
	Trips  []models.Trip   `json:"trips"`
	Page   models.PageInfo `json:"page"`

	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`

	Zones        []models.Zone `json:"zones"`
	ZonesLoading bool          `json:"zonesLoading"`
	ZonesError   string        `json:"zonesError,omitempty"`
}

// ShowPagination is false for single-page (or empty) results.
func (s ListState) ShowPagination() bool { return s.Page.TotalPages > 1 }

// ShowTable reports whether the result table should be drawn.
func (s ListState) ShowTable() bool { return !s.Loading && s.Error == "" }

// ListTrips is the paginated trip list: it owns the query state, keeps the
// zone directory for the filter selectors and fetches a page whenever the
// derived request changes.
//
// Each issued request gets a sequence number. A response is applied only if
// no newer request has been issued since, so the view always reflects the
// most recently issued query regardless of the order responses settle in.
type ListTrips struct {
	client   TripLister
	zones    *ZoneDirectory
	logger   *slog.Logger
	onChange func(ListState)

	mu      sync.Mutex
	query   QueryState
	trips   []models.Trip
	page    models.PageInfo
	loading bool
	err     string

	issued    taxiapi.TripQuery
	hasIssued bool
	seq       uint64
	cancel    context.CancelFunc

	wg      sync.WaitGroup
	changed chan struct{}
}

func NewListTrips(client TripLister, zones ZoneLister, logger *slog.Logger) *ListTrips {
	q := DefaultQueryState()
	return &ListTrips{
		client:  client,
		zones:   NewZoneDirectory(zones, logger),
		logger:  logger,
		query:   q,
		trips:   []models.Trip{},
		page:    models.EmptyPageInfo(q.Cursor.Size),
		changed: make(chan struct{}, 1),
	}
}

// OnChange registers a callback invoked after every state transition.
// Set it before Run.
func (l *ListTrips) OnChange(fn func(ListState)) { l.onChange = fn }

func (l *ListTrips) Zones() *ZoneDirectory { return l.zones }

func (l *ListTrips) SetFilterField(name, value string) error {
	l.mu.Lock()
	err := l.query.SetFilterField(name, value)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.notify()
	return nil
}

func (l *ListTrips) SetSort(token string) error {
	l.mu.Lock()
	err := l.query.SetSort(token)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.notify()
	return nil
}

// GoToPage moves to page number; size 0 keeps the current page size.
// Requests outside the last known page range are ignored.
func (l *ListTrips) GoToPage(number, size int) bool {
	l.mu.Lock()
	ok := l.query.GoToPage(number, size, l.page.TotalPages)
	l.mu.Unlock()
	if ok {
		l.notify()
	}
	return ok
}

func (l *ListTrips) State() ListState {
	l.mu.Lock()
	trips := make([]models.Trip, len(l.trips))
	copy(trips, l.trips)
	s := ListState{
		Filter:  l.query.Filter,
		Sort:    l.query.Sort.String(),
		Cursor:  l.query.Cursor,
		Trips:   trips,
		Page:    l.page,
		Loading: l.loading,
		Error:   l.err,
	}
	l.mu.Unlock()
	s.Zones = l.zones.Zones()
	s.ZonesLoading = l.zones.Loading()
	s.ZonesError = l.zones.Err()
	return s
}

// Run mounts the view: it loads the zone directory, fetches the first page
// and then re-fetches after intents until ctx is done. Intents arriving in a
// burst are coalesced into one request for the final state.
func (l *ListTrips) Run(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.zones.Load(ctx)
		l.emit()
	}()

	l.Sync(ctx)
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			if l.cancel != nil {
				l.cancel()
			}
			l.mu.Unlock()
			l.wg.Wait()
			return
		case <-l.changed:
			l.Sync(ctx)
		}
	}
}

// Sync issues a request if the derived request differs from the last one
// issued. It reports whether a request was issued.
func (l *ListTrips) Sync(ctx context.Context) bool {
	l.mu.Lock()
	q := l.query.Request()
	if l.hasIssued && q == l.issued {
		l.mu.Unlock()
		return false
	}
	l.issueLocked(ctx, q)
	l.mu.Unlock()
	l.emit()
	return true
}

// Wait blocks until every issued request has settled.
func (l *ListTrips) Wait() { l.wg.Wait() }

func (l *ListTrips) issueLocked(ctx context.Context, q taxiapi.TripQuery) {
	if l.cancel != nil {
		l.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	l.seq++
	l.cancel = cancel
	l.issued = q
	l.hasIssued = true
	l.loading = true
	l.err = ""

	l.wg.Add(1)
	go l.fetch(reqCtx, l.seq, q)
}

func (l *ListTrips) fetch(ctx context.Context, seq uint64, q taxiapi.TripQuery) {
	defer l.wg.Done()
	page, err := l.client.ListTrips(ctx, q)

	l.mu.Lock()
	if seq != l.seq {
		latest := l.seq
		l.mu.Unlock()
		observability.StaleResponses.Inc()
		l.logger.Debug("discarding stale trip list response", "seq", seq, "latest", latest)
		return
	}
	l.loading = false
	l.cancel()
	l.cancel = nil
	if err != nil {
		l.logger.Error("error loading trips", "error", err, "page", q.Page, "size", q.Size)
		l.err = MsgTripsFailed
		l.trips = []models.Trip{}
		l.page = models.EmptyPageInfo(q.Size)
	} else {
		l.trips = page.Content
		if l.trips == nil {
			l.trips = []models.Trip{}
		}
		l.page = page.PageInfo
	}
	l.mu.Unlock()
	l.emit()
}

func (l *ListTrips) notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *ListTrips) emit() {
	if l.onChange != nil {
		l.onChange(l.State())
	}
}
