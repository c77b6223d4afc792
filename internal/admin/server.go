// Package admin exposes the local operations surface: liveness, a status
// summary, and the Prometheus scrape endpoint. Bind it to loopback; it has
// no auth.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/heartbeat"
)

// StatusFunc contributes one named section to the /status document.
type StatusFunc func() any

// Server is the admin HTTP listener.
type Server struct {
	srv      *http.Server
	metrics  *heartbeat.Metrics
	sections map[string]StatusFunc
	started  time.Time
}

func NewServer(addr string, gatherer prometheus.Gatherer, metrics *heartbeat.Metrics) *Server {
	s := &Server{
		metrics:  metrics,
		sections: map[string]StatusFunc{},
		started:  time.Now().UTC(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// AddSection registers a /status contributor. Call before Start.
func (s *Server) AddSection(name string, fn StatusFunc) {
	s.sections[name] = fn
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "admin").Str("addr", s.srv.Addr).Msg("admin server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("component", "admin").Msg("admin server failed")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"metrics": s.metrics.Snapshot(),
	}
	for name, fn := range s.sections {
		doc[name] = fn()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.Warn().Err(err).Str("component", "admin").Msg("status encode failed")
	}
}
