// Package worker implements the cache worker: the single goroutine that
// owns the content cache and serializes every mutation to it through an
// unbounded command channel, plus the upstream single-flight fetch path
// and the periodic TTL sweeper that feed it commands.
package worker

import (
	"time"

	infinity "github.com/Code-Hex/go-infinity-channel"
	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/cache"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/metrics"
	"github.com/nyx-network/gateway/pkg/resolver"
)

// CacheWorker drains Commands off an unbounded channel and is the sole
// mutator of the Cache it owns. It is unbounded rather than buffered-and-
// blocking because it is the sole consumer: a bounded channel here would
// let a slow fetch backpressure every other cache operation, including
// cheap reads, behind it.
type CacheWorker struct {
	cache    *cache.Cache
	resolver *resolver.Resolver
	fetcher  *Fetcher

	commands *infinity.Channel[cache.Command]
	failure  chan error
	logger   zerolog.Logger
}

// New builds a CacheWorker around c, resolving providers through r and
// fetching their bytes with the given per-attempt HTTP timeout.
func New(c *cache.Cache, r *resolver.Resolver, fetchTimeout time.Duration) *CacheWorker {
	return &CacheWorker{
		cache:    c,
		resolver: r,
		fetcher:  NewFetcher(fetchTimeout),
		commands: infinity.NewChannel[cache.Command](),
		failure:  make(chan error, 1),
		logger:   log.WithComponent("cache-worker"),
	}
}

// Submit posts cmd to the worker's command channel. It never blocks: the
// channel is unbounded, so Submit always succeeds while the worker is
// alive. Submitting after Close is undefined; callers gate on shutdown
// themselves (the public server checks the supervisor's ShutdownFlag; the
// admin server has no such check and relies on being shut down before
// Close).
func (w *CacheWorker) Submit(cmd cache.Command) {
	w.commands.In() <- cmd
}

// Failed returns the worker's failure-signal channel, which the
// supervisor selects on. Run never sends on it: its loop ends only when
// the command channel is closed.
func (w *CacheWorker) Failed() <-chan error { return w.failure }

// Close stops accepting new commands and lets Run drain and exit.
func (w *CacheWorker) Close() { w.commands.Close() }

// Run drains the command channel serially until it is closed, applying
// each command to the owned Cache. This is the only goroutine that ever
// touches w.cache, which is what makes the cache's methods safe without
// locks.
func (w *CacheWorker) Run() {
	for cmd := range w.commands.Out() {
		w.apply(cmd)
	}
	w.logger.Debug().Msg("cache worker command channel closed")
}

func (w *CacheWorker) apply(cmd cache.Command) {
	now := time.Now()
	switch cmd.Kind() {
	case cache.KindFetch:
		w.handleFetch(cmd, now)
	case cache.KindInsert:
		w.handleInsert(cmd, now)
	case cache.KindTTLCleanUp:
		w.handleTTLCleanUp(now)
	case cache.KindGetStats:
		w.handleGetStats(cmd)
	case cache.KindPurge:
		w.handlePurge(cmd)
	case cache.KindResolveFetch:
		w.handleResolveFetch(cmd, now)
	}
	w.reportOccupancy()
}

func (w *CacheWorker) handleFetch(cmd cache.Command, now time.Time) {
	if entry, ok := w.cache.Get(cmd.CID, now); ok {
		cmd.FetchReply <- cache.FetchResult{Bytes: entry.Bytes, ExpiresAt: entry.ExpiresAt}
		return
	}

	if _, ok := w.cache.GetInFlight(cmd.CID); ok {
		w.cache.JoinInFlight(cmd.CID, cmd.FetchReply)
		return
	}

	w.cache.BeginInFlight(cmd.CID, cmd.FetchReply)
	metrics.CacheInFlightTotal.Set(float64(w.cache.Stats().InFlight))
	cidForFetch := cmd.CID
	go w.runFetch(cidForFetch)
}

func (w *CacheWorker) handleInsert(cmd cache.Command, now time.Time) {
	evicted, err := w.cache.Insert(cmd.CID, cmd.Bytes, now)
	if err != nil {
		w.logger.Debug().Err(err).Str("cid", cmd.CID).Msg("insert rejected")
		return
	}
	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("lru").Add(float64(evicted))
	}
}

// handleResolveFetch completes an InFlight record. On success the entry is
// already installed in the cache (Insert is posted before ResolveFetch, per
// §4.3.c), so the hit's actual ExpiresAt is looked up here and attached to
// the result every waiter receives — the Cache-Control header downstream
// must reflect the entry's real remaining TTL, not the configured ttl_buf.
func (w *CacheWorker) handleResolveFetch(cmd cache.Command, now time.Time) {
	result := cmd.FetchResultValue
	if result.Err == nil {
		if entry, ok := w.cache.Get(cmd.CID, now); ok {
			result.ExpiresAt = entry.ExpiresAt
		}
	}
	w.cache.ResolveInFlight(cmd.CID, result)
}

func (w *CacheWorker) handleTTLCleanUp(now time.Time) {
	evicted := w.cache.TTLCleanUp(now)
	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("ttl").Add(float64(evicted))
		w.logger.Debug().Int("evicted", evicted).Msg("ttl sweep")
	}
}

func (w *CacheWorker) handleGetStats(cmd cache.Command) {
	cmd.StatsReply <- w.cache.Stats()
}

func (w *CacheWorker) handlePurge(cmd cache.Command) {
	removed := w.cache.Purge(cmd.CID)
	if removed {
		metrics.CacheEvictionsTotal.WithLabelValues("purge").Inc()
	}
	cmd.PurgeReply <- removed
}

func (w *CacheWorker) reportOccupancy() {
	stats := w.cache.Stats()
	metrics.CacheSizeBytes.Set(float64(stats.SizeBytes))
	metrics.CacheEntriesTotal.Set(float64(stats.Entries))
	metrics.CacheInFlightTotal.Set(float64(stats.InFlight))
}

// runFetch resolves providers for cid and fetches bytes from them in
// order, then posts the result back through the command channel so it is
// applied by the same single writer that originated the InFlight record.
// It is a detached goroutine: one per originating Fetch, never per waiter.
func (w *CacheWorker) runFetch(cidKey string) {
	logger := log.WithCID(cidKey)
	timer := metrics.NewTimer()

	bytes, err := w.fetcher.Fetch(w.resolver, cidKey)

	timer.ObserveDuration(metrics.UpstreamFetchDuration)

	if err != nil {
		logger.Info().Err(err).Msg("fetch failed")
		w.Submit(cache.ResolveFetch(cidKey, cache.FetchResult{Err: err}))
		return
	}

	logger.Debug().Int("bytes", len(bytes)).Msg("fetch succeeded")
	w.Submit(cache.Insert(cidKey, bytes))
	w.Submit(cache.ResolveFetch(cidKey, cache.FetchResult{Bytes: bytes}))
}
