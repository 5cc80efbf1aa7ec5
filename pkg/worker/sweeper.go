package worker

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/cache"
	"github.com/nyx-network/gateway/pkg/log"
)

var errSweeperChannelClosed = errors.New("worker: ttl sweeper's command channel is closed")

// Sweeper periodically posts a TtlCleanUp command to a CacheWorker. Its
// states are Idle (not yet started), Sleeping (waiting out the interval),
// and Emitting (posting the command); on the stop signal it transitions
// to terminal from whichever state it is in.
type Sweeper struct {
	worker   *CacheWorker
	interval time.Duration
	stopCh   chan struct{}
	failure  chan error
	logger   zerolog.Logger
}

// NewSweeper builds a Sweeper that posts TtlCleanUp to w every interval.
func NewSweeper(w *CacheWorker, interval time.Duration) *Sweeper {
	return &Sweeper{
		worker:   w,
		interval: interval,
		stopCh:   make(chan struct{}),
		failure:  make(chan error, 1),
		logger:   log.WithComponent("ttl-sweeper"),
	}
}

// Failed reports a failure signal if posting a command ever panics the
// command channel having been closed out from under the sweeper.
func (s *Sweeper) Failed() <-chan error { return s.failure }

// Stop signals the sweeper to exit on its next tick check.
func (s *Sweeper) Stop() { close(s.stopCh) }

// Run blocks, emitting TtlCleanUp on a fixed interval until Stop is
// called. The command channel it posts to is unbounded, so Emitting never
// blocks on the worker; a closed channel manifests as a panic from the
// underlying send, which is recovered here and raised as a failure.
func (s *Sweeper) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.emit() {
				return
			}
		case <-s.stopCh:
			s.logger.Debug().Msg("ttl sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) emit() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("ttl sweep post failed, command channel closed")
			select {
			case s.failure <- errSweeperChannelClosed:
			default:
			}
			ok = false
		}
	}()
	s.worker.Submit(cache.TTLCleanUp())
	return true
}
