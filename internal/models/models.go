package models

import "time"

// Trip is one taxi ride. Times are local wall-clock times without zone,
// which is how the trip data set records them.
type Trip struct {
	ID                int64     `json:"id"`
	PickupDateTime    LocalTime `json:"pickupDateTime"`
	DropoffDateTime   LocalTime `json:"dropoffDateTime"`
	PickupLocationID  int       `json:"pickupLocationID"`
	DropoffLocationID int       `json:"dropoffLocationID"`
}

type Zone struct {
	LocationID  int    `json:"locationID"`
	Borough     string `json:"borough"`
	ZoneName    string `json:"zoneName"`
	ServiceZone string `json:"serviceZone,omitempty"`
}

type TopZone struct {
	ZoneName string `json:"zoneName"`
	Count    int64  `json:"count"`
}

type TripSummary struct {
	ZoneID       int    `json:"zoneId"`
	Date         string `json:"date"`
	PickupCount  int64  `json:"pickupCount"`
	DropoffCount int64  `json:"dropoffCount"`
}

// Side selects which end of a trip a zone query looks at.
type Side string

const (
	SidePickup  Side = "pickup"
	SideDropoff Side = "dropoff"
)

// PageInfo is the paging metadata of a trip page, as reported by the backend.
type PageInfo struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// EmptyPageInfo is the page metadata shown when nothing is loaded.
func EmptyPageInfo(size int) PageInfo {
	return PageInfo{Number: 0, Size: size, TotalPages: 0, TotalElements: 0, First: true, Last: true}
}

// TripPage is the /list-trips response envelope.
type TripPage struct {
	Content []Trip `json:"content"`
	PageInfo
	NumberOfElements int  `json:"numberOfElements"`
	Empty            bool `json:"empty"`
}

// NewTripPage fills the derived paging fields for a slice of a result set.
func NewTripPage(content []Trip, number, size int, total int64) TripPage {
	if content == nil {
		content = []Trip{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return TripPage{
		Content: content,
		PageInfo: PageInfo{
			Number:        number,
			Size:          size,
			TotalPages:    pages,
			TotalElements: total,
			First:         number == 0,
			Last:          pages == 0 || number >= pages-1,
		},
		NumberOfElements: len(content),
		Empty:            len(content) == 0,
	}
}

const localTimeLayout = "2006-01-02T15:04:05"

// LocalTime marshals as an ISO local date-time ("2024-01-01T08:30:00").
type LocalTime struct {
	time.Time
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(localTimeLayout) + `"`), nil
}

func (t *LocalTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &time.ParseError{Layout: localTimeLayout, Value: s, Message: ": not a JSON string"}
	}
	s = s[1 : len(s)-1]
	for _, layout := range []string{localTimeLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	_, err := time.Parse(localTimeLayout, s)
	return err
}
