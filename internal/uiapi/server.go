package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/lifecycle"
	"github.com/awaistahir/smart-window/internal/store"
)

// Version is reported by the status endpoint
var Version = "dev"

// Sensor is one configured selection sensor
type Sensor interface {
	ID() string
	Tick(ctx context.Context, now time.Time) (lifecycle.Outcome, error)
	Attributes(now time.Time) lifecycle.Attributes
}

// Records is the persisted state behind the sensors
type Records interface {
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
	Events(start, end time.Time) []store.Event
}

type Server struct {
	sensors []Sensor
	byID    map[string]Sensor
	records Records
	loc     *time.Location
	logger  zerolog.Logger
	now     func() time.Time
}

func NewServer(sensors []Sensor, records Records, loc *time.Location, logger zerolog.Logger) *Server {
	byID := make(map[string]Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.ID()] = s
	}
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		sensors: sensors,
		byID:    byID,
		records: records,
		loc:     loc,
		logger:  logger.With().Str("component", "uiapi").Logger(),
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for dashboards served from another origin
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/sensors", s.handleListSensors)
		r.Delete("/sensors", s.handleClearAll)
		r.Get("/sensors/{id}", s.handleGetSensor)
		r.Post("/sensors/{id}/update", s.handleUpdateSensor)
		r.Post("/sensors/{id}/clear", s.handleClearSensor)
		r.Get("/calendar", s.handleCalendar)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(started)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"sensors": len(s.sensors),
	})
}

type sensorSummary struct {
	UniqueID string      `json:"unique_id"`
	Name     string      `json:"name"`
	IsOn     bool        `json:"is_on"`
	Mode     engine.Mode `json:"mode"`
}

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.loc)
	out := make([]sensorSummary, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		attrs := sensor.Attributes(now)
		out = append(out, sensorSummary{
			UniqueID: attrs.UniqueID,
			Name:     attrs.Name,
			IsOn:     attrs.IsOn,
			Mode:     attrs.Mode,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sensor.Attributes(s.now().In(s.loc)))
}

func (s *Server) handleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensor(w, r)
	if !ok {
		return
	}

	now := s.now().In(s.loc)
	outcome, err := sensor.Tick(r.Context(), now)
	if err != nil {
		s.logger.Error().Err(err).Str("sensor", sensor.ID()).Msg("manual update failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outcome":    outcome,
		"attributes": sensor.Attributes(now),
	})
}

func (s *Server) handleClearSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensor(w, r)
	if !ok {
		return
	}

	err := s.records.Clear(r.Context(), sensor.ID())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Str("sensor", sensor.ID()).Msg("sensor data cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.records.ClearAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Msg("all sensor data cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	start, err := parseBound(r.URL.Query().Get("start"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseBound(r.URL.Query().Get("end"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end")
		return
	}
	if !end.After(start) {
		respondError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	events := s.records.Events(start, end)
	if events == nil {
		events = []store.Event{}
	}
	for i := range events {
		events[i].Start, events[i].End = events[i].Start.In(s.loc), events[i].End.In(s.loc)
	}
	respondJSON(w, http.StatusOK, events)
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing")
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) sensor(w http.ResponseWriter, r *http.Request) (Sensor, bool) {
	id := lifecycle.NormalizeID(chi.URLParam(r, "id"))
	sensor, ok := s.byID[id]
	if !ok {
		respondError(w, http.StatusNotFound, "sensor not found")
	}
	return sensor, ok
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
