package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/taxi-dashboard/internal/logging"
	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/taxiapi"
)

// fakeTrips answers every ListTrips call immediately.
type fakeTrips struct {
	mu    sync.Mutex
	calls []taxiapi.TripQuery
	page  models.TripPage
	err   error
}

func (f *fakeTrips) ListTrips(ctx context.Context, q taxiapi.TripQuery) (models.TripPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	return f.page, f.err
}

func (f *fakeTrips) Calls() []taxiapi.TripQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]taxiapi.TripQuery(nil), f.calls...)
}

type fakeZones struct {
	mu    sync.Mutex
	calls int
	zones []models.Zone
	err   error
}

func (f *fakeZones) GetZones(ctx context.Context) ([]models.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.zones, f.err
}

type result struct {
	page models.TripPage
	err  error
}

// gatedTrips holds each call until the test releases it, ignoring ctx.
type gatedTrips struct {
	mu    sync.Mutex
	calls []taxiapi.TripQuery
	gates []chan result
}

func newGatedTrips(n int) *gatedTrips {
	g := &gatedTrips{}
	for i := 0; i < n; i++ {
		g.gates = append(g.gates, make(chan result, 1))
	}
	return g
}

func (g *gatedTrips) ListTrips(ctx context.Context, q taxiapi.TripQuery) (models.TripPage, error) {
	g.mu.Lock()
	g.calls = append(g.calls, q)
	gate := g.gates[len(g.calls)-1]
	g.mu.Unlock()
	r := <-gate
	return r.page, r.err
}

func tripPage(ids []int64, number, size int, total int64) models.TripPage {
	trips := make([]models.Trip, 0, len(ids))
	for _, id := range ids {
		trips = append(trips, models.Trip{ID: id, PickupLocationID: 132, DropoffLocationID: 236})
	}
	return models.NewTripPage(trips, number, size, total)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDefaultMountRequest(t *testing.T) {
	f := &fakeTrips{page: tripPage([]int64{1, 2}, 0, 10, 2)}
	l := NewListTrips(f, &fakeZones{}, logging.Discard())

	if !l.Sync(context.Background()) {
		t.Fatal("first sync must issue a request")
	}
	l.Wait()

	calls := f.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one request, got %d", len(calls))
	}
	want := taxiapi.TripQuery{Page: 0, Size: 10, Sort: "pickupDateTime,asc"}
	if calls[0] != want {
		t.Fatalf("got %+v, want %+v", calls[0], want)
	}
	v := calls[0].Values()
	if len(v) != 3 {
		t.Fatalf("no filter params expected, got %v", v)
	}

	s := l.State()
	if s.Loading || s.Error != "" || len(s.Trips) != 2 {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.ShowPagination() {
		t.Fatal("single page result must not show pagination")
	}
	if !s.ShowTable() {
		t.Fatal("table should render after a successful fetch")
	}
}

func TestSyncSkipsUnchangedRequest(t *testing.T) {
	f := &fakeTrips{page: tripPage(nil, 0, 10, 0)}
	l := NewListTrips(f, &fakeZones{}, logging.Discard())
	ctx := context.Background()

	l.Sync(ctx)
	l.Wait()
	if l.Sync(ctx) {
		t.Fatal("unchanged request was issued again")
	}
	// Setting the same value again derives the same request.
	_ = l.SetFilterField(FilterPickupDate, "")
	if l.Sync(ctx) {
		t.Fatal("equal request was issued again")
	}
	if n := len(f.Calls()); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestFilterThenSizeIssuesSingleRequest(t *testing.T) {
	f := &fakeTrips{page: tripPage(nil, 0, 20, 0)}
	l := NewListTrips(f, &fakeZones{}, logging.Discard())

	if err := l.SetFilterField(FilterPickupDate, "2024-01-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.GoToPage(0, 20) {
		t.Fatal("size change rejected")
	}
	l.Sync(context.Background())
	l.Wait()

	calls := f.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(calls))
	}
	want := taxiapi.TripQuery{Page: 0, Size: 20, Sort: "pickupDateTime,asc", PickupDate: "2024-01-01"}
	if calls[0] != want {
		t.Fatalf("got %+v, want %+v", calls[0], want)
	}
}

func TestGoToPageValidatedAgainstLastResult(t *testing.T) {
	f := &fakeTrips{page: tripPage([]int64{1}, 0, 10, 25)}
	l := NewListTrips(f, &fakeZones{}, logging.Discard())
	l.Sync(context.Background())
	l.Wait()

	if l.State().Page.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", l.State().Page.TotalPages)
	}
	if !l.State().ShowPagination() {
		t.Fatal("multi-page result should show pagination")
	}
	before := l.State().Cursor
	if l.GoToPage(3, 0) || l.GoToPage(-1, 0) {
		t.Fatal("out of range page accepted")
	}
	if l.State().Cursor != before {
		t.Fatalf("cursor changed by a rejected request: %+v", l.State().Cursor)
	}
	if !l.GoToPage(2, 0) || l.State().Cursor.Number != 2 {
		t.Fatalf("valid page rejected: %+v", l.State().Cursor)
	}
	if !l.GoToPage(2, 50) || l.State().Cursor != (PageCursor{Number: 0, Size: 50}) {
		t.Fatalf("size change must land on page 0: %+v", l.State().Cursor)
	}
}

func TestFailedFetchResetsResult(t *testing.T) {
	f := &fakeTrips{page: tripPage([]int64{1, 2, 3}, 0, 10, 40)}
	l := NewListTrips(f, &fakeZones{}, logging.Discard())
	ctx := context.Background()
	l.Sync(ctx)
	l.Wait()
	l.GoToPage(2, 0)

	f.mu.Lock()
	f.err = errors.New("connection refused")
	f.mu.Unlock()
	l.Sync(ctx)
	l.Wait()

	s := l.State()
	if s.Error != MsgTripsFailed {
		t.Fatalf("expected %q, got %q", MsgTripsFailed, s.Error)
	}
	if len(s.Trips) != 0 {
		t.Fatalf("trips must be cleared, got %d", len(s.Trips))
	}
	p := s.Page
	if p.Number != 0 || p.TotalElements != 0 || p.TotalPages != 0 || !p.First || !p.Last {
		t.Fatalf("page result not reset: %+v", p)
	}
	if s.Loading || s.ShowTable() {
		t.Fatalf("loading=%v showTable=%v after failure", s.Loading, s.ShowTable())
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	g := newGatedTrips(2)
	l := NewListTrips(g, &fakeZones{}, logging.Discard())
	ctx := context.Background()

	l.Sync(ctx)
	_ = l.SetFilterField(FilterPickupLocationID, "132")
	l.Sync(ctx)

	// Newest request settles first, then the superseded one.
	g.gates[1] <- result{page: tripPage([]int64{20, 21}, 0, 10, 2)}
	eventually(t, func() bool { return !l.State().Loading })
	g.gates[0] <- result{page: tripPage([]int64{10}, 0, 10, 1)}
	l.Wait()

	s := l.State()
	if len(s.Trips) != 2 || s.Trips[0].ID != 20 {
		t.Fatalf("stale response overwrote the newer one: %+v", s.Trips)
	}
	if s.Page.TotalElements != 2 {
		t.Fatalf("unexpected page info: %+v", s.Page)
	}
}

func TestOlderResponseSettlingFirstIsIgnored(t *testing.T) {
	g := newGatedTrips(2)
	l := NewListTrips(g, &fakeZones{}, logging.Discard())
	ctx := context.Background()

	l.Sync(ctx)
	_ = l.SetSort("dropoffDateTime,desc")
	l.Sync(ctx)

	g.gates[0] <- result{page: tripPage([]int64{10}, 0, 10, 1)}
	time.Sleep(20 * time.Millisecond)
	if s := l.State(); !s.Loading || len(s.Trips) != 0 {
		t.Fatalf("superseded response was applied: %+v", s)
	}
	g.gates[1] <- result{err: errors.New("timeout")}
	l.Wait()
	if s := l.State(); s.Error != MsgTripsFailed || s.Loading {
		t.Fatalf("latest failure not applied: %+v", s)
	}
}

func TestRunCoalescesIntents(t *testing.T) {
	f := &fakeTrips{page: tripPage(nil, 0, 10, 0)}
	z := &fakeZones{zones: []models.Zone{{LocationID: 132, ZoneName: "JFK Airport", Borough: "Queens"}}}
	l := NewListTrips(f, z, logging.Discard())

	var mu sync.Mutex
	var last ListState
	l.OnChange(func(s ListState) {
		mu.Lock()
		last = s
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	eventually(t, func() bool { return len(f.Calls()) == 1 && !l.State().ZonesLoading })

	_ = l.SetFilterField(FilterPickupLocationID, "132")
	_ = l.SetSort("pickupDateTime,desc")
	want := taxiapi.TripQuery{Page: 0, Size: 10, Sort: "pickupDateTime,desc", PickupLocationID: "132"}
	eventually(t, func() bool {
		calls := f.Calls()
		return calls[len(calls)-1] == want
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := len(f.Calls()); n > 3 {
		t.Fatalf("expected at most 3 requests, got %d", n)
	}
	if z.calls != 1 {
		t.Fatalf("zones must load exactly once, got %d", z.calls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(last.Zones) != 1 || last.Zones[0].ZoneName != "JFK Airport" {
		t.Fatalf("change callback missing zones: %+v", last.Zones)
	}
}
