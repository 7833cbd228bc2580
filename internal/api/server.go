package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firewx/bcfireweather/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Server is the read-only query API over the observation store.
type Server struct {
	store  *store.Store
	loc    *time.Location
	port   string
	logger *slog.Logger
}

func NewServer(st *store.Store, loc *time.Location, port string, logger *slog.Logger) *Server {
	return &Server{store: st, loc: loc, port: port, logger: logger}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/stations/", s.handleListStations).Methods(http.MethodGet)
	r.HandleFunc("/stations/{id:[0-9]+}/", s.handleGetStation).Methods(http.MethodGet)
	r.HandleFunc("/stations/{id:[0-9]+}/with_observations/", s.handleStationWithObservations).Methods(http.MethodGet)
	r.HandleFunc("/stations/{id:[0-9]+}/statistics/", s.handleStationStatistics).Methods(http.MethodGet)

	r.HandleFunc("/observations/", s.handleListObservations).Methods(http.MethodGet)
	r.HandleFunc("/observations/latest/", s.handleLatestObservations).Methods(http.MethodGet)
	r.HandleFunc("/observations/recent/", s.handleRecentObservations).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.error(w, http.StatusNotFound, "not found")
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("query api listening", "port", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// error writes the API error body. All failures look the same on the wire:
// a status code and a detail message.
func (s *Server) error(w http.ResponseWriter, status int, detail string) {
	s.json(w, status, map[string]string{"detail": detail})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("query failed", "op", op, "error", err)
	s.error(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	version, err := s.store.MigrationVersion()
	if err != nil {
		s.error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.json(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"migration_version": version,
	})
}
