package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/taxi-dashboard/internal/storage"
)

const dateLayout = "2006-01-02"

type zoneTripsQuery struct {
	ZoneID string `validate:"required,number"`
	Date   string `validate:"required,datetime=2006-01-02"`
}

type listTripsQuery struct {
	PickupLocationID  string `validate:"omitempty,number"`
	DropoffLocationID string `validate:"omitempty,number"`
	PickupDate        string `validate:"omitempty,datetime=2006-01-02"`
	DropoffDate       string `validate:"omitempty,datetime=2006-01-02"`
	Page              string `validate:"omitempty,number"`
	Size              string `validate:"omitempty,number"`
}

type zoneTripsParams struct {
	zoneID int
	day    time.Time
}

type listTripsParams struct {
	filter storage.TripFilter
	page   storage.PageRequest
}

func (s *Server) parseZoneTrips(r *http.Request) (zoneTripsParams, error) {
	v := r.URL.Query()
	q := zoneTripsQuery{ZoneID: strings.TrimSpace(v.Get("zoneId")), Date: strings.TrimSpace(v.Get("date"))}
	if err := s.validate.Struct(q); err != nil {
		return zoneTripsParams{}, validationError(err)
	}
	id, err := strconv.Atoi(q.ZoneID)
	if err != nil {
		return zoneTripsParams{}, fmt.Errorf("zoneId: %w", err)
	}
	day, _ := time.Parse(dateLayout, q.Date)
	return zoneTripsParams{zoneID: id, day: day}, nil
}

// parseListTrips reads filters, page, size and sort. size is capped at
// storage.MaxPageSize and falls back to storage.DefaultSize when below 1.
func (s *Server) parseListTrips(r *http.Request) (listTripsParams, error) {
	v := r.URL.Query()
	q := listTripsQuery{
		PickupLocationID:  strings.TrimSpace(v.Get("pickupLocationId")),
		DropoffLocationID: strings.TrimSpace(v.Get("dropoffLocationId")),
		PickupDate:        strings.TrimSpace(v.Get("pickupDate")),
		DropoffDate:       strings.TrimSpace(v.Get("dropoffDate")),
		Page:              strings.TrimSpace(v.Get("page")),
		Size:              strings.TrimSpace(v.Get("size")),
	}
	if err := s.validate.Struct(q); err != nil {
		return listTripsParams{}, validationError(err)
	}

	var p listTripsParams
	var err error
	if p.filter.PickupLocationID, err = atoiOr(q.PickupLocationID, 0); err != nil {
		return p, fmt.Errorf("pickupLocationId: %w", err)
	}
	if p.filter.DropoffLocationID, err = atoiOr(q.DropoffLocationID, 0); err != nil {
		return p, fmt.Errorf("dropoffLocationId: %w", err)
	}
	if q.PickupDate != "" {
		p.filter.PickupDate, _ = time.Parse(dateLayout, q.PickupDate)
	}
	if q.DropoffDate != "" {
		p.filter.DropoffDate, _ = time.Parse(dateLayout, q.DropoffDate)
	}

	if p.page.Page, err = atoiOr(q.Page, storage.DefaultPage); err != nil {
		return p, fmt.Errorf("page: %w", err)
	}
	if p.page.Size, err = atoiOr(q.Size, storage.DefaultSize); err != nil {
		return p, fmt.Errorf("size: %w", err)
	}
	if p.page.Size < 1 {
		p.page.Size = storage.DefaultSize
	}
	if p.page.Size > storage.MaxPageSize {
		p.page.Size = storage.MaxPageSize
	}
	if p.page.Page > math.MaxInt/p.page.Size {
		return p, errors.New("page is out of range")
	}

	if p.page.Sort, p.page.Desc, err = storage.ParseSort(v.Get("sort")); err != nil {
		return p, err
	}
	return p, nil
}

func atoiOr(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

var queryNames = map[string]string{
	"ZoneID":            "zoneId",
	"Date":              "date",
	"PickupLocationID":  "pickupLocationId",
	"DropoffLocationID": "dropoffLocationId",
	"PickupDate":        "pickupDate",
	"DropoffDate":       "dropoffDate",
	"Page":              "page",
	"Size":              "size",
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := queryNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "number":
			msgs = append(msgs, name+" must be a non-negative integer")
		case "datetime":
			msgs = append(msgs, name+" must be a date (YYYY-MM-DD)")
		default:
			msgs = append(msgs, name+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
