package views

import (
	"errors"
	"testing"
)

func TestSetFilterFieldResetsPage(t *testing.T) {
	for _, name := range []string{FilterPickupLocationID, FilterDropoffLocationID, FilterPickupDate, FilterDropoffDate} {
		s := DefaultQueryState()
		s.Cursor.Number = 4
		if err := s.SetFilterField(name, "x"); err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if s.Cursor.Number != 0 {
			t.Fatalf("%s: expected page 0, got %d", name, s.Cursor.Number)
		}
	}
}

func TestSetFilterFieldUnknown(t *testing.T) {
	s := DefaultQueryState()
	s.Cursor.Number = 3
	if err := s.SetFilterField("borough", "Queens"); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
	if s.Cursor.Number != 3 {
		t.Fatalf("rejected edit must not move the cursor")
	}
}

func TestSetSort(t *testing.T) {
	s := DefaultQueryState()
	s.Cursor.Number = 2
	if err := s.SetSort("dropoffDateTime,desc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Sort.String() != "dropoffDateTime,desc" || s.Cursor.Number != 0 {
		t.Fatalf("got sort=%s page=%d", s.Sort, s.Cursor.Number)
	}
	for _, bad := range []string{"", "pickupDateTime", "fare,asc", "pickupDateTime,up"} {
		if err := s.SetSort(bad); !errors.Is(err, ErrInvalidSort) {
			t.Fatalf("SetSort(%q): expected ErrInvalidSort, got %v", bad, err)
		}
	}
	if s.Sort.String() != "dropoffDateTime,desc" {
		t.Fatalf("invalid token replaced the sort key: %s", s.Sort)
	}
}

func TestGoToPageSizeChangeLandsOnFirstPage(t *testing.T) {
	for _, n := range []int{-3, 0, 2, 99} {
		s := DefaultQueryState()
		s.Cursor.Number = 2
		if !s.GoToPage(n, 20, 5) {
			t.Fatalf("GoToPage(%d, 20) rejected", n)
		}
		if s.Cursor != (PageCursor{Number: 0, Size: 20}) {
			t.Fatalf("GoToPage(%d, 20): got %+v", n, s.Cursor)
		}
	}
}

func TestGoToPageOutOfRangeIgnored(t *testing.T) {
	s := DefaultQueryState()
	s.Cursor.Number = 1
	before := s
	if s.GoToPage(-1, 0, 3) {
		t.Fatal("negative page accepted")
	}
	if s.GoToPage(3, 0, 3) {
		t.Fatal("page == totalPages accepted")
	}
	if s.GoToPage(1, 30, 3) {
		t.Fatal("unsupported page size accepted")
	}
	if s != before {
		t.Fatalf("state changed: %+v -> %+v", before, s)
	}
	if !s.GoToPage(2, 0, 3) || s.Cursor.Number != 2 {
		t.Fatalf("valid page rejected, cursor %+v", s.Cursor)
	}
}

func TestGoToPageUnknownTotal(t *testing.T) {
	s := DefaultQueryState()
	if !s.GoToPage(7, 0, 0) || s.Cursor.Number != 7 {
		t.Fatalf("with no known total any non-negative page is allowed, cursor %+v", s.Cursor)
	}
}

func TestRequestDropsEmptyFilters(t *testing.T) {
	s := DefaultQueryState()
	_ = s.SetFilterField(FilterPickupLocationID, "5")
	_ = s.SetFilterField(FilterDropoffLocationID, "")
	v := s.Request().Values()
	if v.Get("pickupLocationId") != "5" {
		t.Fatalf("expected pickupLocationId=5, got %v", v)
	}
	if _, ok := v["dropoffLocationId"]; ok {
		t.Fatalf("empty dropoffLocationId must be absent: %v", v)
	}
}
