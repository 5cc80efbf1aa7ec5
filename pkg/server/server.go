// Package server implements the gateway's public HTTP surface: a single
// GET /{cid} endpoint that resolves through the cache worker and streams
// bytes back to the client.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/cache"
	gwcid "github.com/nyx-network/gateway/pkg/cid"
	"github.com/nyx-network/gateway/pkg/config"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/metrics"
	"github.com/nyx-network/gateway/pkg/resolver"
	"github.com/nyx-network/gateway/pkg/worker"
)

// Server is the public content-delivery HTTP surface.
type Server struct {
	store  *config.Store
	worker *worker.CacheWorker
	http   *http.Server
	logger zerolog.Logger

	shuttingDown func() bool
}

// New builds a Server bound to the address in store's current snapshot,
// submitting Fetch commands to w. shuttingDown reports whether the
// gateway is currently shutting down, used to return 503 instead of
// submitting commands to a worker that is about to close its channel.
func New(store *config.Store, w *worker.CacheWorker, shuttingDown func() bool) *Server {
	s := &Server{
		store:        store,
		worker:       w,
		logger:       log.WithComponent("public-server"),
		shuttingDown: shuttingDown,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleGet)

	s.http = &http.Server{
		Addr:    store.Snapshot().Server.Bind,
		Handler: mux,
	}
	return s
}

// ListenAndServe blocks serving the public surface until Shutdown is
// called or a fatal listener error occurs.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("bind", s.http.Addr).Msg("public server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown() error {
	ctx, cancel := newShutdownContext()
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		s.reply(w, http.StatusServiceUnavailable)
		return
	}

	requestID := uuid.New().String()
	logger := s.logger.With().Str("request_id", requestID).Logger()

	cidStr := strings.TrimPrefix(r.URL.Path, "/")
	parsed, err := gwcid.Parse(cidStr)
	if err != nil {
		logger.Debug().Str("path", r.URL.Path).Msg("malformed cid")
		s.reply(w, http.StatusBadRequest)
		return
	}

	cfg := s.store.Snapshot()

	reply := make(cache.Waiter, 1)
	s.worker.Submit(cache.Fetch(parsed.Key(), reply))

	// A canceled request stops waiting here; the worker's send to the
	// buffered waiter never blocks, so the fetch continues for others.
	var result cache.FetchResult
	select {
	case result = <-reply:
	case <-r.Context().Done():
		logger.Debug().Str("cid", cidStr).Msg("request canceled while waiting for fetch")
		return
	}
	if result.Err != nil {
		logger.Info().Err(result.Err).Str("cid", cidStr).Msg("fetch failed")
		s.replyForError(w, result.Err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if ct := http.DetectContentType(result.Bytes); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", cacheControlHeader(result.ExpiresAt, time.Now(), cfg.Server.CacheControlMaxSize))
	w.WriteHeader(http.StatusOK)

	s.stream(w, result.Bytes, cfg.Server.StreamBuf)
	metrics.RequestsTotal.WithLabelValues("public", "200").Inc()
}

func (s *Server) stream(w http.ResponseWriter, payload []byte, chunkSize int) {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	reader := bytes.NewReader(payload)
	buf := make([]byte, chunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) replyForError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resolver.ErrNoProviders):
		s.reply(w, http.StatusNotFound)
	case errors.Is(err, worker.ErrUpstreamFailed), errors.Is(err, resolver.ErrIndexerUnreachable):
		s.reply(w, http.StatusBadGateway)
	default:
		s.reply(w, http.StatusBadGateway)
	}
}

func (s *Server) reply(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	metrics.RequestsTotal.WithLabelValues("public", http.StatusText(status)).Inc()
}

// cacheControlHeader derives max-age from the entry's actual remaining TTL
// (expiresAt - now, per §4.2/§4.5), clamped to cache_control_max_size. A
// zero expiresAt (an oversized artifact served but never cached) reports
// max-age=0, since there is in fact nothing cached to honor a longer value.
func cacheControlHeader(expiresAt, now time.Time, maxAge int) string {
	remaining := 0
	if !expiresAt.IsZero() {
		if d := expiresAt.Sub(now); d > 0 {
			remaining = int(d.Seconds())
		}
	}
	if maxAge > 0 && remaining > maxAge {
		remaining = maxAge
	}
	return "max-age=" + strconv.Itoa(remaining)
}

func newShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
