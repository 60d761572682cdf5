package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/lifelight/internal/models"
	"github.com/lox/lifelight/internal/store"
)

// Server is the presentation boundary: hydrated observations as JSON and
// GeoJSON, plus a per-batch SSE push fed by the sync listener.
type Server struct {
	store  *store.Store
	port   string
	events *eventHub
}

func NewServer(st *store.Store, port string) *Server {
	return &Server{
		store:  st,
		port:   port,
		events: newEventHub(),
	}
}

// NotifyUpserted pushes a committed batch to connected SSE clients. Wired as
// the syncer's listener.
func (s *Server) NotifyUpserted(batch []models.HydratedObservation) {
	s.events.broadcast(batch)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/observations", s.handleObservations)
	mux.HandleFunc("/api/observations.geojson", s.handleObservationsGeoJSON)
	mux.HandleFunc("/events", s.events.handle)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
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

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	hydrated, err := s.store.HydrateAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Newest observation first; records without an observed time sort last.
	sort.Slice(hydrated, func(i, j int) bool {
		a, b := hydrated[i].ObservedAt, hydrated[j].ObservedAt
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Time.After(b.Time)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toViews(hydrated))
}

func (s *Server) handleObservationsGeoJSON(w http.ResponseWriter, r *http.Request) {
	hydrated, err := s.store.HydrateAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(toFeatureCollection(hydrated))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	watermark, err := s.store.Watermark()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"watermark": watermark.Format(time.RFC3339),
	})
}
