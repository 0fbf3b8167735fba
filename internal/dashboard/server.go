package dashboard

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/taxi-dashboard/internal/models"
	"github.com/example/taxi-dashboard/internal/views"
)

//go:embed templates/*.html
var templateFS embed.FS

var filterFields = []string{
	views.FilterPickupLocationID,
	views.FilterDropoffLocationID,
	views.FilterPickupDate,
	views.FilterDropoffDate,
}

// Server renders the top-zones, zone-summary and trip-list views and turns
// form posts into view intents.
type Server struct {
	list    *views.ListTrips
	top     *views.TopZones
	summary *views.ZoneTrips
	hub     *Hub
	logger  *slog.Logger

	tmpl     *template.Template
	upgrader websocket.Upgrader
	mux      *mux.Router
}

func NewServer(list *views.ListTrips, top *views.TopZones, summary *views.ZoneTrips, hub *Hub, logger *slog.Logger) *Server {
	s := &Server{
		list:    list,
		top:     top,
		summary: summary,
		hub:     hub,
		logger:  logger,
		mux:     mux.NewRouter(),
	}
	s.tmpl = template.Must(template.New("").Funcs(template.FuncMap{
		"zoneName": list.Zones().Name,
		"clock":    formatLocal,
		"inc":      func(i int) int { return i + 1 },
		"dec":      func(i int) int { return i - 1 },
	}).ParseFS(templateFS, "templates/*.html"))
	s.mux.Use(s.recoverMiddleware, s.logMiddleware)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.mux.HandleFunc("/top-zones", s.handleTopZones).Methods(http.MethodGet)
	s.mux.HandleFunc("/zone-trips", s.handleZoneTrips).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/filter", s.handleFilter).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/sort", s.handleSort).Methods(http.MethodPost)
	s.mux.HandleFunc("/trips/page", s.handlePage).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Publish pushes the trip list state to live-update clients. It is meant to
// be registered with views.ListTrips.OnChange.
func (s *Server) Publish(state views.ListState) {
	s.hub.Broadcast(state)
}

type indexData struct {
	List        views.ListState
	Top         views.TopZonesState
	Summary     views.ZoneTripsState
	PageSizes   []int
	SortOptions []struct {
		Token string
		Label string
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		List:        s.list.State(),
		Top:         s.top.State(),
		Summary:     s.summary.State(),
		PageSizes:   views.PageSizes,
		SortOptions: views.SortOptions,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("render index failed", "error", err)
	}
}

func (s *Server) handleTopZones(w http.ResponseWriter, r *http.Request) {
	if err := s.top.SetOrderBy(r.Context(), r.URL.Query().Get("orderBy")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleZoneTrips(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.summary.Submit(r.Context(), r.PostForm.Get("zoneId"), r.PostForm.Get("date"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleFilter accepts either a field/value pair or any of the filter
// inputs by name.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if field := r.PostForm.Get("field"); field != "" {
		if err := s.list.SetFilterField(field, r.PostForm.Get("value")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		for _, name := range filterFields {
			if values, ok := r.PostForm[name]; ok {
				_ = s.list.SetFilterField(name, values[0])
			}
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.list.SetSort(r.PostForm.Get("sort")); err != nil {
		if errors.Is(err, views.ErrInvalidSort) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handlePage moves the cursor. Out-of-range pages are ignored like any
// other disabled control.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cur := s.list.State().Cursor
	number, err := intOr(r.PostForm.Get("page"), cur.Number)
	if err != nil {
		http.Error(w, "page must be an integer", http.StatusBadRequest)
		return
	}
	size, err := intOr(r.PostForm.Get("size"), 0)
	if err != nil {
		http.Error(w, "size must be an integer", http.StatusBadRequest)
		return
	}
	if !s.list.GoToPage(number, size) {
		s.logger.Debug("page request ignored", "page", number, "size", size)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.list.State())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", "error", err)
		return
	}
	sess := s.hub.add(conn)
	if err := sess.send(s.list.State()); err != nil {
		s.hub.remove(sess)
		return
	}
	// Drain client frames so close and ping control messages are handled.
	go func() {
		defer s.hub.remove(sess)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http_request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func intOr(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func formatLocal(t models.LocalTime) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02T15:04:05")
}
