// Package config loads and holds the gateway's configuration. The document
// is parsed once at startup and thereafter held as a single immutable
// snapshot behind a read-mostly lock: the admin server can publish a
// replacement snapshot, but a reader never observes a half-updated value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the public HTTP surface.
type ServerConfig struct {
	Bind                string `yaml:"bind" json:"bind"`
	StreamBuf           int    `yaml:"stream_buf" json:"stream_buf"`
	CacheControlMaxSize int    `yaml:"cache_control_max_size" json:"cache_control_max_size"`
}

// CacheConfig configures the in-memory content cache.
type CacheConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes" json:"max_size_bytes"`
	TTLBufMs     int64 `yaml:"ttl_buf_ms" json:"ttl_buf_ms"`
}

// WorkerConfig configures the cache worker's background tasks.
type WorkerConfig struct {
	TTLCacheIntervalMs int64 `yaml:"ttl_cache_interval_ms" json:"ttl_cache_interval_ms"`
}

// IndexerConfig configures the resolver's upstream indexer.
type IndexerConfig struct {
	CIDURL string `yaml:"cid_url" json:"cid_url"`
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	Bind string `yaml:"bind" json:"bind"`
}

// DiscoveryConfig configures the Kademlia/mDNS peer discovery overlay.
type DiscoveryConfig struct {
	BootstrapPeers     []string `yaml:"bootstrap_peers" json:"bootstrap_peers"`
	EnableMDNS         bool     `yaml:"enable_mdns" json:"enable_mdns"`
	IsBootstrapper     bool     `yaml:"is_bootstrapper" json:"is_bootstrapper"`
	BootstrapIntervalS int64    `yaml:"bootstrap_interval_s" json:"bootstrap_interval_s"`
}

// GatewayConfig is the whole-document configuration recognized by the
// gateway. It is immutable after load/validate; hot-reload replaces the
// pointer wholesale rather than mutating fields in place.
//
// Field tags carry both yaml (file load, §3) and json (admin POST /config
// reload, §4.6) encodings since the two surfaces speak different wire
// formats over the same document shape.
type GatewayConfig struct {
	LogLevel  string          `yaml:"log_level" json:"log_level"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Worker    WorkerConfig    `yaml:"worker" json:"worker"`
	Indexer   IndexerConfig   `yaml:"indexer" json:"indexer"`
	Admin     AdminConfig     `yaml:"admin" json:"admin"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
}

// Defaults matching the documented optional-key fallbacks.
const (
	DefaultLogLevel            = "info"
	DefaultStreamBuf           = 64 * 1024
	DefaultCacheControlMaxSize = 300
	DefaultMaxSizeBytes        = 512 * 1024 * 1024
	DefaultTTLBufMs            = 60_000
	DefaultTTLCacheIntervalMs  = 30_000
	DefaultAdminBind           = "127.0.0.1:6009"
	DefaultBootstrapIntervalS  = 300
)

// Load reads and parses a GatewayConfig document from path, applies
// defaults for missing optional keys, and validates required keys.
func Load(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *GatewayConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Server.StreamBuf == 0 {
		c.Server.StreamBuf = DefaultStreamBuf
	}
	if c.Server.CacheControlMaxSize == 0 {
		c.Server.CacheControlMaxSize = DefaultCacheControlMaxSize
	}
	if c.Cache.MaxSizeBytes == 0 {
		c.Cache.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.Cache.TTLBufMs == 0 {
		c.Cache.TTLBufMs = DefaultTTLBufMs
	}
	if c.Worker.TTLCacheIntervalMs == 0 {
		c.Worker.TTLCacheIntervalMs = DefaultTTLCacheIntervalMs
	}
	if c.Admin.Bind == "" {
		c.Admin.Bind = DefaultAdminBind
	}
	if c.Discovery.BootstrapIntervalS == 0 {
		c.Discovery.BootstrapIntervalS = DefaultBootstrapIntervalS
	}
}

// Validate checks the required keys the spec marks fatal at startup.
func (c *GatewayConfig) Validate() error {
	if c.Indexer.CIDURL == "" {
		return fmt.Errorf("config: indexer.cid_url is required")
	}
	if c.Server.Bind == "" {
		return fmt.Errorf("config: server.bind is required")
	}
	return nil
}

// MergeLogLevel overrides the loaded log level with a CLI-supplied value,
// mirroring the source's merge-before-freeze behavior: the override is
// folded in before the config is handed to the first Store snapshot.
func (c *GatewayConfig) MergeLogLevel(override string) {
	if override != "" {
		c.LogLevel = override
	}
}
