// Package api provides the REST and websocket surface for dashboards.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"slopewatch/internal/hub"
	"slopewatch/internal/risk"
	"slopewatch/internal/storage"
	"slopewatch/internal/telemetry"
)

// Server serves station data, alert management and the live update socket.
type Server struct {
	store storage.Store
	risk  *risk.Aggregator
	hub   *hub.Hub
	port  int
}

// Config holds the API server settings.
type Config struct {
	Port int
}

// NewServer creates the API server.
func NewServer(store storage.Store, agg *risk.Aggregator, h *hub.Hub, cfg Config) *Server {
	return &Server{
		store: store,
		risk:  agg,
		hub:   h,
		port:  cfg.Port,
	}
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	addr := ":" + strconv.Itoa(s.port)
	log.Printf("api: listening at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// Router returns the configured chi router, also used by tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser dashboards.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/stations/{station_id}", func(r chi.Router) {
			r.Get("/readings", s.handleListReadings)
			r.Get("/alerts", s.handleListAlerts)
			r.Get("/risk", s.handleRisk)
		})

		r.Post("/alerts/{alert_id}/resolve", s.handleResolveAlert)
	})

	// Live updates; the hub owns the connection lifecycle.
	r.Get("/ws/updates", s.hub.ServeWS)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"clients": s.hub.Len(),
	})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "station_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station_id")
		return
	}

	q := storage.ReadingQuery{
		StationID:  stationID,
		SensorType: telemetry.SensorType(r.URL.Query().Get("sensor_type")),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp (use RFC 3339)")
			return
		}
		q.Since = since
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	readings, err := s.store.ListReadings(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "station_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station_id")
		return
	}

	q := storage.AlertQuery{StationID: stationID}
	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resolved flag")
			return
		}
		q.Resolved = &resolved
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	alerts, err := s.store.ListAlerts(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []storage.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	stationID, err := pathID(r, "station_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station_id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"station_id": stationID,
		"risk_level": s.risk.For(r.Context(), stationID),
	})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := pathID(r, "alert_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert_id")
		return
	}

	if err := s.store.ResolveAlert(r.Context(), alertID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          alertID,
		"is_resolved": true,
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
