// Package api exposes the read-only HTTP interface over the latest snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/metrics"
	"github.com/JakeFAU/ecfr-snapshot/internal/snapshot"
)

// Server wires HTTP handlers to the snapshot store. Every request reads the
// store fresh, so a snapshot written by a concurrent ingestion run is visible
// without a restart.
type Server struct {
	router chi.Router
	store  snapshot.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store snapshot.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/agencies", func(r chi.Router) {
			r.Get("/", s.listAgencies)
			r.Get("/metrics", s.listAgencyMetrics)
			r.Get("/{agency}/checksum", s.getAgencyChecksum)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Ready once a snapshot exists to serve.
	if _, err := s.store.Load(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listAgencies(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	names := make([]string, 0, len(snap.Agencies))
	for name := range snap.Agencies {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{
		"asOfDate": snap.AsOfDate,
		"agencies": names,
	})
}

func (s *Server) listAgencyMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	list := make([]ecfr.AgencyMetrics, 0, len(snap.Agencies))
	for _, m := range snap.Agencies {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Agency < list[j].Agency })
	writeJSON(w, http.StatusOK, map[string]any{
		"asOfDate": snap.AsOfDate,
		"metrics":  list,
	})
}

func (s *Server) getAgencyChecksum(w http.ResponseWriter, r *http.Request) {
	agency, err := url.PathUnescape(chi.URLParam(r, "agency"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agency name")
		return
	}
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	m, found := snap.Agencies[agency]
	if !found {
		writeError(w, http.StatusNotFound, "agency not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     m.Agency,
		"checksum": m.Checksum,
		"asOfDate": snap.AsOfDate,
	})
}

// loadSnapshot reads the current snapshot or writes the appropriate error
// response and reports false.
func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) (ecfr.Snapshot, bool) {
	snap, err := s.store.Load(r.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "no snapshot available")
			return ecfr.Snapshot{}, false
		}
		s.logger.Error("load snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return ecfr.Snapshot{}, false
	}
	return snap, true
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
