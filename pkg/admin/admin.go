// Package admin implements the gateway's operator-facing HTTP surface:
// cache introspection, purge, live config replacement, health, and
// Prometheus metrics. It shares the same command channel and config
// store as the public server.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/cache"
	gwcid "github.com/nyx-network/gateway/pkg/cid"
	"github.com/nyx-network/gateway/pkg/config"
	"github.com/nyx-network/gateway/pkg/health"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/metrics"
	"github.com/nyx-network/gateway/pkg/worker"
)

// Server is the admin HTTP surface.
type Server struct {
	store     *config.Store
	worker    *worker.CacheWorker
	startedAt time.Time
	health    health.Checker
	http      *http.Server
	logger    zerolog.Logger
}

// New builds an admin Server bound to store's current admin bind address.
// healthChecker is consulted by GET /healthz; pass nil to skip the
// upstream indexer check and always report healthy.
func New(store *config.Store, w *worker.CacheWorker, healthChecker health.Checker) *Server {
	s := &Server{
		store:     store,
		worker:    w,
		startedAt: time.Now(),
		health:    healthChecker,
		logger:    log.WithComponent("admin-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/purge/", s.handlePurge)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())

	s.http = &http.Server{
		Addr:    store.Snapshot().Admin.Bind,
		Handler: mux,
	}
	return s
}

// ListenAndServe blocks serving the admin surface until Shutdown is
// called or a fatal listener error occurs.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("bind", s.http.Addr).Msg("admin server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type statsResponse struct {
	SizeBytes int64  `json:"size_bytes"`
	Entries   int    `json:"entries"`
	InFlight  int    `json:"in_flight"`
	UptimeS   int64  `json:"uptime_seconds"`
	LogLevel  string `json:"log_level"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reply := make(chan cache.Stats, 1)
	s.worker.Submit(cache.GetStats(reply))
	stats := <-reply

	resp := statsResponse{
		SizeBytes: stats.SizeBytes,
		Entries:   stats.Entries,
		InFlight:  stats.InFlight,
		UptimeS:   int64(time.Since(s.startedAt).Seconds()),
		LogLevel:  s.store.Snapshot().LogLevel,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cidStr := strings.TrimPrefix(r.URL.Path, "/purge/")
	parsed, err := gwcid.Parse(cidStr)
	if err != nil {
		http.Error(w, "malformed cid", http.StatusBadRequest)
		return
	}

	reply := make(chan bool, 1)
	s.worker.Submit(cache.Purge(parsed.Key(), reply))
	<-reply

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var next config.GatewayConfig
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		http.Error(w, "malformed config document", http.StatusBadRequest)
		return
	}
	if err := next.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.store.Replace(&next)
	s.logger.Info().Msg("config snapshot replaced")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	result := s.health.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !result.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
