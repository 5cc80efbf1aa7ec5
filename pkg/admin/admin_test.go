package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyx-network/gateway/pkg/cache"
	"github.com/nyx-network/gateway/pkg/config"
	"github.com/nyx-network/gateway/pkg/resolver"
	"github.com/nyx-network/gateway/pkg/worker"
)

func newTestAdmin(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.GatewayConfig{
		LogLevel: "info",
		Server:   config.ServerConfig{Bind: "127.0.0.1:0"},
		Cache:    config.CacheConfig{MaxSizeBytes: 1 << 20, TTLBufMs: 60_000},
		Indexer:  config.IndexerConfig{CIDURL: "http://127.0.0.1:1"},
	}
	store := config.NewStore(cfg)
	c := cache.New(cfg.Cache.MaxSizeBytes, time.Minute)
	r := resolver.New(cfg.Indexer.CIDURL, time.Second)
	w := worker.New(c, r, time.Second)
	go w.Run()
	t.Cleanup(w.Close)

	s := New(store, w, nil)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandleStatsReturnsOccupancy(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(0), stats.SizeBytes)
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 0, stats.InFlight)
}

func TestHandlePurgeReturns200(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Post(ts.URL+"/purge/ab12", "application/octet-stream", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlePurgeMalformedCIDReturns400(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Post(ts.URL+"/purge/not-hex!", "application/octet-stream", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleConfigReplacesSnapshot(t *testing.T) {
	s, ts := newTestAdmin(t)
	body := `{"log_level":"debug","server":{"bind":"127.0.0.1:9000"},"indexer":{"cid_url":"http://127.0.0.1:1"}}`
	resp, err := http.Post(ts.URL+"/config", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "debug", s.store.Snapshot().LogLevel)
}

func TestHandleConfigRejectsMissingRequiredKeys(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Post(ts.URL+"/config", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHealthzWithoutCheckerReturns200(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	_, ts := newTestAdmin(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# TYPE gateway_cache_size_bytes gauge")
}
