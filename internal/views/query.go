package views

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/taxi-dashboard/internal/taxiapi"
)

var (
	ErrUnknownFilter = errors.New("unknown filter field")
	ErrInvalidSort   = errors.New("invalid sort token")
)

// Filter field names, as used in query strings and form inputs.
const (
	FilterPickupLocationID  = "pickupLocationId"
	FilterDropoffLocationID = "dropoffLocationId"
	FilterPickupDate        = "pickupDate"
	FilterDropoffDate       = "dropoffDate"
)

// Filter constrains the trip list. An empty field is unconstrained.
type Filter struct {
	PickupLocationID  string `json:"pickupLocationId"`
	DropoffLocationID string `json:"dropoffLocationId"`
	PickupDate        string `json:"pickupDate"`
	DropoffDate       string `json:"dropoffDate"`
}

func (f *Filter) set(name, value string) error {
	switch name {
	case FilterPickupLocationID:
		f.PickupLocationID = value
	case FilterDropoffLocationID:
		f.DropoffLocationID = value
	case FilterPickupDate:
		f.PickupDate = value
	case FilterDropoffDate:
		f.DropoffDate = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return nil
}

type SortField string

const (
	SortByPickup  SortField = "pickupDateTime"
	SortByDropoff SortField = "dropoffDateTime"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortKey orders the trip list; it travels as a single "field,direction" token.
type SortKey struct {
	Field     SortField
	Direction SortDirection
}

func DefaultSortKey() SortKey { return SortKey{Field: SortByPickup, Direction: SortAsc} }

func (k SortKey) String() string { return string(k.Field) + "," + string(k.Direction) }

func ParseSortKey(token string) (SortKey, error) {
	field, dir, ok := strings.Cut(strings.TrimSpace(token), ",")
	if !ok {
		return SortKey{}, fmt.Errorf("%w: %q", ErrInvalidSort, token)
	}
	k := SortKey{Field: SortField(field), Direction: SortDirection(strings.ToLower(dir))}
	if k.Field != SortByPickup && k.Field != SortByDropoff {
		return SortKey{}, fmt.Errorf("%w: field %q", ErrInvalidSort, field)
	}
	if k.Direction != SortAsc && k.Direction != SortDesc {
		return SortKey{}, fmt.Errorf("%w: direction %q", ErrInvalidSort, dir)
	}
	return k, nil
}

// SortOptions lists the tokens offered by the sort selector.
var SortOptions = []struct {
	Token string
	Label string
}{
	{"pickupDateTime,asc", "Pickup Time (Asc)"},
	{"pickupDateTime,desc", "Pickup Time (Desc)"},
	{"dropoffDateTime,asc", "Dropoff Time (Asc)"},
	{"dropoffDateTime,desc", "Dropoff Time (Desc)"},
}

// PageSizes are the page sizes a user can pick.
var PageSizes = []int{10, 20, 50}

func validPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

type PageCursor struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

// QueryState is what the user asked for: filters, sort and the page cursor.
type QueryState struct {
	Filter Filter
	Sort   SortKey
	Cursor PageCursor
}

func DefaultQueryState() QueryState {
	return QueryState{
		Sort:   DefaultSortKey(),
		Cursor: PageCursor{Number: 0, Size: taxiapi.DefaultPageSize},
	}
}

// SetFilterField updates one filter and rewinds to the first page.
func (s *QueryState) SetFilterField(name, value string) error {
	if err := s.Filter.set(name, value); err != nil {
		return err
	}
	s.Cursor.Number = 0
	return nil
}

// SetSort replaces the sort key and rewinds to the first page.
func (s *QueryState) SetSort(token string) error {
	k, err := ParseSortKey(token)
	if err != nil {
		return err
	}
	s.Sort = k
	s.Cursor.Number = 0
	return nil
}

// GoToPage moves the cursor. size 0 keeps the current size; a different size
// always lands on page 0. The target is checked against totalPages from the
// last result (0 means unknown, anything non-negative goes). It reports
// whether the cursor was changed; rejected requests leave it untouched.
func (s *QueryState) GoToPage(number, size, totalPages int) bool {
	if size == 0 {
		size = s.Cursor.Size
	}
	if !validPageSize(size) {
		return false
	}
	target := number
	if size != s.Cursor.Size {
		target = 0
	}
	if target < 0 || (totalPages != 0 && target >= totalPages) {
		return false
	}
	s.Cursor = PageCursor{Number: target, Size: size}
	return true
}

// Request derives the /list-trips query for the current state.
func (s QueryState) Request() taxiapi.TripQuery {
	return taxiapi.TripQuery{
		Page:              s.Cursor.Number,
		Size:              s.Cursor.Size,
		Sort:              s.Sort.String(),
		PickupLocationID:  strings.TrimSpace(s.Filter.PickupLocationID),
		DropoffLocationID: strings.TrimSpace(s.Filter.DropoffLocationID),
		PickupDate:        strings.TrimSpace(s.Filter.PickupDate),
		DropoffDate:       strings.TrimSpace(s.Filter.DropoffDate),
	}
}
