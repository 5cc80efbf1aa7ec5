package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyx-network/gateway/pkg/cache"
	"github.com/nyx-network/gateway/pkg/config"
	"github.com/nyx-network/gateway/pkg/resolver"
	"github.com/nyx-network/gateway/pkg/worker"
)

func newTestServer(t *testing.T, indexerURL string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.GatewayConfig{
		Server: config.ServerConfig{Bind: "127.0.0.1:0", StreamBuf: 1024, CacheControlMaxSize: 60},
		Cache:  config.CacheConfig{MaxSizeBytes: 1 << 20, TTLBufMs: 60_000},
	}
	store := config.NewStore(cfg)

	c := cache.New(cfg.Cache.MaxSizeBytes, time.Minute)
	r := resolver.New(indexerURL, time.Second)
	w := worker.New(c, r, time.Second)
	go w.Run()
	t.Cleanup(w.Close)

	s := New(store, w, func() bool { return false })
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		s.handleGet(rw, req)
	}))
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandleGetMalformedCIDReturns400(t *testing.T) {
	_, ts := newTestServer(t, "http://127.0.0.1:1")
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetNoProvidersReturns404(t *testing.T) {
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer indexer.Close()

	_, ts := newTestServer(t, indexer.URL)
	resp, err := http.Get(ts.URL + "/abcd")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGetColdHitReturns200WithBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("payload-bytes"))
	}))
	defer upstream.Close()

	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"providers":[{"url":"` + upstream.URL + `"}]}`))
	}))
	defer indexer.Close()

	_, ts := newTestServer(t, indexer.URL)
	resp, err := http.Get(ts.URL + "/ab12")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(body))

	var maxAge int
	_, err = fmt.Sscanf(resp.Header.Get("Cache-Control"), "max-age=%d", &maxAge)
	require.NoError(t, err)
	assert.InDelta(t, 60, maxAge, 2, "max-age should reflect the freshly inserted entry's ~60s ttl_buf")
}

func TestCacheControlHeaderReflectsEntrysRemainingTTLNotConfiguredTTL(t *testing.T) {
	now := time.Now()

	// Served right after insertion: nearly the full ttl_buf is left.
	assert.Equal(t, "max-age=60", cacheControlHeader(now.Add(60*time.Second), now, 300))

	// Served late in the entry's life: only the actual remainder counts,
	// not the configured ttl_buf the entry was first inserted with.
	assert.Equal(t, "max-age=10", cacheControlHeader(now.Add(10*time.Second), now, 300))

	// Clamped to cache_control_max_size even when more time remains.
	assert.Equal(t, "max-age=30", cacheControlHeader(now.Add(300*time.Second), now, 30))

	// An artifact never actually cached (e.g. oversized) reports max-age=0.
	assert.Equal(t, "max-age=0", cacheControlHeader(time.Time{}, now, 300))
}

func TestHandleGetShuttingDownReturns503(t *testing.T) {
	cfg := &config.GatewayConfig{
		Server: config.ServerConfig{Bind: "127.0.0.1:0", StreamBuf: 1024, CacheControlMaxSize: 60},
		Cache:  config.CacheConfig{MaxSizeBytes: 1 << 20, TTLBufMs: 60_000},
	}
	store := config.NewStore(cfg)
	c := cache.New(cfg.Cache.MaxSizeBytes, time.Minute)
	r := resolver.New("http://127.0.0.1:1", time.Second)
	w := worker.New(c, r, time.Second)
	go w.Run()
	t.Cleanup(w.Close)

	s := New(store, w, func() bool { return true })
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		s.handleGet(rw, req)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ab12")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
