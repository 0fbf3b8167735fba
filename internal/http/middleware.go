package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/taxi-dashboard/internal/observability"
)

type ctxKey struct{}

// requestInfo travels with a request so handlers can attach trip query
// fields to its access log line.
type requestInfo struct {
	id string

	mu    sync.Mutex
	attrs []any
}

func infoFrom(ctx context.Context) *requestInfo {
	ri, _ := ctx.Value(ctxKey{}).(*requestInfo)
	return ri
}

func requestIDFromContext(ctx context.Context) string {
	if ri := infoFrom(ctx); ri != nil {
		return ri.id
	}
	return ""
}

// annotate adds key/value pairs to the access log line of r.
func annotate(r *http.Request, kv ...any) {
	ri := infoFrom(r.Context())
	if ri == nil {
		return
	}
	ri.mu.Lock()
	ri.attrs = append(ri.attrs, kv...)
	ri.mu.Unlock()
}

func (s *Server) registerMiddleware() {
	s.mux.Use(s.recoverMiddleware, s.accessLogMiddleware)
}

// accessLogMiddleware assigns the request id, records route metrics and
// writes one http_request line carrying any fields the handler annotated.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ri := &requestInfo{id: r.Header.Get("X-Request-ID")}
		if ri.id == "" {
			ri.id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", ri.id)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ri)))

		route := routeTemplate(r)
		code := strconv.Itoa(rec.code)
		elapsed := time.Since(start)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())

		ri.mu.Lock()
		attrs := append([]any{
			"request_id", ri.id,
			"method", r.Method,
			"route", route,
			"status", rec.code,
			"duration_ms", elapsed.Milliseconds(),
			"client", clientAddr(r),
		}, ri.attrs...)
		ri.mu.Unlock()
		s.logger.Info("http_request", attrs...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panicked", "panic", v, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware applies the allowed-origins policy to /api routes. Cross
// origin requests from unknown origins are rejected; preflights are answered
// here without reaching the router.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !strings.HasPrefix(r.URL.Path, "/api/") || sameOrigin(r, origin) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := s.origins[origin]; !ok {
			http.Error(w, "Invalid CORS request", http.StatusForbidden)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "1800")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameOrigin(r *http.Request, origin string) bool {
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// routeTemplate labels metrics by mux template so ids in paths do not
// explode label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
