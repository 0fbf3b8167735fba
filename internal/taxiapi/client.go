package taxiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/taxi-dashboard/internal/logging"
	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/observability"
)

const (
	DefaultPageSize = 10
	DefaultSort     = "pickupDateTime,asc"
	DefaultOrderBy  = "pickup"
)

// ErrMissingParams is returned by GetZoneTrips before any request is made.
var ErrMissingParams = errors.New("zoneId and date are required")

// StatusError reports a non-2xx answer from the trip API.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// Client talks to the trip API. It holds no global state; construct one per
// backend and hand it to the views.
type Client struct {
	BaseURL string
	Header  http.Header
	Client  *http.Client
	Logger  *slog.Logger

	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.Client = hc } }

// WithTimeout bounds every request. Zero leaves requests unbounded. It is
// applied to a copy of the HTTP client, whichever option order is used.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func WithHeader(key, value string) Option { return func(c *Client) { c.Header.Set(key, value) } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.Logger = l } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Header:  http.Header{"Content-Type": []string{"application/json"}},
		Client:  &http.Client{},
		Logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.Client
		hc.Timeout = c.timeout
		c.Client = &hc
	}
	return c
}

// TripQuery is the parameter set of /list-trips. It is comparable, so two
// queries can be diffed with ==.
type TripQuery struct {
	Page              int
	Size              int
	Sort              string
	PickupLocationID  string
	DropoffLocationID string
	PickupDate        string
	DropoffDate       string
}

// Values encodes the query. Empty filters are left out entirely.
func (q TripQuery) Values() url.Values {
	size := q.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	sort := q.Sort
	if sort == "" {
		sort = DefaultSort
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("size", strconv.Itoa(size))
	v.Set("sort", sort)
	setIfNotEmpty(v, "pickupLocationId", q.PickupLocationID)
	setIfNotEmpty(v, "dropoffLocationId", q.DropoffLocationID)
	setIfNotEmpty(v, "pickupDate", q.PickupDate)
	setIfNotEmpty(v, "dropoffDate", q.DropoffDate)
	return v
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func (c *Client) GetZones(ctx context.Context) ([]models.Zone, error) {
	var zones []models.Zone
	if err := c.get(ctx, "/zones", nil, &zones); err != nil {
		return nil, err
	}
	if zones == nil {
		zones = []models.Zone{}
	}
	return zones, nil
}

// GetTopZones returns at most five zones, already ordered by the backend.
func (c *Client) GetTopZones(ctx context.Context, orderBy string) ([]models.TopZone, error) {
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	var zones []models.TopZone
	if err := c.get(ctx, "/top-zones", url.Values{"orderBy": []string{orderBy}}, &zones); err != nil {
		return nil, err
	}
	if zones == nil {
		zones = []models.TopZone{}
	}
	return zones, nil
}

func (c *Client) GetZoneTrips(ctx context.Context, zoneID, date string) (models.TripSummary, error) {
	if zoneID == "" || date == "" {
		c.Logger.Error("zone trips request rejected", "error", ErrMissingParams)
		return models.TripSummary{}, ErrMissingParams
	}
	var summary models.TripSummary
	params := url.Values{"zoneId": []string{zoneID}, "date": []string{date}}
	if err := c.get(ctx, "/zone-trips", params, &summary); err != nil {
		return models.TripSummary{}, err
	}
	return summary, nil
}

func (c *Client) ListTrips(ctx context.Context, q TripQuery) (models.TripPage, error) {
	params := q.Values()
	c.Logger.Debug("requesting /list-trips", "params", params.Encode())
	var page models.TripPage
	if err := c.get(ctx, "/list-trips", params, &page); err != nil {
		return models.TripPage{}, err
	}
	if page.Content == nil {
		page.Content = []models.Trip{}
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		observability.APIRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		observability.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	u := c.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
