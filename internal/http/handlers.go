package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/taxi-dashboard/internal/ingest"
	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/observability"
	"github.com/example/taxi-dashboard/internal/storage"
)

// TripPublisher hands an ingested trip to the asynchronous pipeline.
type TripPublisher interface {
	PublishTrip(ctx context.Context, t models.Trip) error
}

type Server struct {
	store     storage.TripStore
	cache     storage.TopZonesCache
	publisher TripPublisher
	logger    *slog.Logger
	origins   map[string]struct{}
	validate  *validator.Validate
	mux       *mux.Router
	handler   http.Handler
}

type Option func(*Server)

// WithCache caches top-zone rankings.
func WithCache(c storage.TopZonesCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithPublisher routes POST /internal/trips through p instead of saving directly.
func WithPublisher(p TripPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = make(map[string]struct{}, len(origins))
		for _, o := range origins {
			s.origins[strings.TrimRight(o, "/")] = struct{}{}
		}
	}
}

func NewServer(store storage.TripStore, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		store:    store,
		logger:   logger,
		origins:  map[string]struct{}{},
		validate: validator.New(),
		mux:      mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerMiddleware()
	s.routes()
	s.handler = s.corsMiddleware(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/zones", s.handleZones).Methods(http.MethodGet)
	api.HandleFunc("/top-zones", s.handleTopZones).Methods(http.MethodGet)
	api.HandleFunc("/zone-trips", s.handleZoneTrips).Methods(http.MethodGet)
	api.HandleFunc("/list-trips", s.handleListTrips).Methods(http.MethodGet)

	s.mux.HandleFunc("/internal/trips", s.handleIngestTrip).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.Zones(r.Context())
	if err != nil {
		s.internalError(w, r, "list zones", err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleTopZones(w http.ResponseWriter, r *http.Request) {
	orderBy := r.URL.Query().Get("orderBy")
	if orderBy == "" {
		orderBy = string(models.SidePickup)
	}
	side := storage.SideFromOrderBy(orderBy)
	annotate(r, "side", side)

	if s.cache != nil {
		if zones, ok := s.cache.Get(r.Context(), side); ok {
			observability.TopZonesCache.WithLabelValues("hit").Inc()
			writeJSON(w, http.StatusOK, zones)
			return
		}
		observability.TopZonesCache.WithLabelValues("miss").Inc()
	}

	zones, err := s.store.TopZones(r.Context(), side, storage.TopZonesLimit)
	if err != nil {
		s.internalError(w, r, "top zones", err)
		return
	}
	if s.cache != nil {
		s.cache.Set(r.Context(), side, zones)
	}
	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleZoneTrips(w http.ResponseWriter, r *http.Request) {
	p, err := s.parseZoneTrips(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, to := storage.DayBounds(p.day)
	pickups, err := s.store.CountTrips(r.Context(), p.zoneID, models.SidePickup, from, to)
	if err != nil {
		s.internalError(w, r, "count pickups", err)
		return
	}
	dropoffs, err := s.store.CountTrips(r.Context(), p.zoneID, models.SideDropoff, from, to)
	if err != nil {
		s.internalError(w, r, "count dropoffs", err)
		return
	}
	writeJSON(w, http.StatusOK, models.TripSummary{
		ZoneID:       p.zoneID,
		Date:         p.day.Format(dateLayout),
		PickupCount:  pickups,
		DropoffCount: dropoffs,
	})
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	p, err := s.parseListTrips(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	annotate(r, "page", p.page.Page, "size", p.page.Size, "sort", p.page.Sort)

	trips, total, err := s.store.FindTrips(r.Context(), p.filter, p.page)
	if err != nil {
		s.internalError(w, r, "find trips", err)
		return
	}
	annotate(r, "total", total)
	writeJSON(w, http.StatusOK, models.NewTripPage(trips, p.page.Page, p.page.Size, total))
}

func (s *Server) handleIngestTrip(w http.ResponseWriter, r *http.Request) {
	var t models.Trip
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ingest.ValidateTrip(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTrip(r.Context(), t); err != nil {
			s.logger.Error("publish trip failed", "error", err, "request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusServiceUnavailable, "trip queue unavailable")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	if err := s.store.SaveTrips(r.Context(), []models.Trip{t}); err != nil {
		s.internalError(w, r, "save trip", err)
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(r.Context())
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error(op+" failed", "error", err, "request_id", requestIDFromContext(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
