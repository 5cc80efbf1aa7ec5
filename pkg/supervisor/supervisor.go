// Package supervisor runs the gateway's worker goroutines and shuts them
// down cooperatively on signal or on any one worker's failure.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/admin"
	"github.com/nyx-network/gateway/pkg/discovery"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/server"
	"github.com/nyx-network/gateway/pkg/worker"
)

// Supervisor owns the gateway's long-running goroutines and the
// ShutdownFlag that the public server checks before submitting work.
type Supervisor struct {
	public    *server.Server
	adminSrv  *admin.Server
	cache     *worker.CacheWorker
	sweeper   *worker.Sweeper
	discovery *discovery.Behaviour

	shuttingDown *ShutdownFlag

	failures chan error
	logger   zerolog.Logger
}

// New builds a Supervisor around the given components. discoveryBehaviour
// may be nil when the discovery overlay is disabled. flag is the same
// ShutdownFlag instance whose IsSet is handed to public server
// construction, so the public server's shutdown check observes this
// Supervisor's shutdown. The admin server does not check it.
func New(flag *ShutdownFlag, public *server.Server, adminSrv *admin.Server, cacheWorker *worker.CacheWorker, sweeper *worker.Sweeper, discoveryBehaviour *discovery.Behaviour) *Supervisor {
	return &Supervisor{
		public:       public,
		adminSrv:     adminSrv,
		cache:        cacheWorker,
		sweeper:      sweeper,
		discovery:    discoveryBehaviour,
		shuttingDown: flag,
		failures:     make(chan error, 4),
		logger:       log.WithComponent("supervisor"),
	}
}

// Run starts every worker goroutine and blocks until a SIGINT/SIGTERM or
// any worker's failure signal triggers a cooperative shutdown of the
// rest, then returns once the shutdown sequence has run. The public and
// admin servers are shut down synchronously; the sweeper and the cache
// worker are signalled to stop but their goroutines are not waited for.
func (s *Supervisor) Run() error {
	go s.runAndReport("cache-worker", func() error { s.cache.Run(); return nil })
	go s.runAndReport("sweeper", func() error { s.sweeper.Run(); return nil })
	go s.runAndReport("public-server", s.public.ListenAndServe)
	go s.runAndReport("admin-server", s.adminSrv.ListenAndServe)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		s.logger.Info().Msg("received shutdown signal")
	case err := <-s.failures:
		s.logger.Error().Err(err).Msg("worker failed, shutting down")
	case err := <-s.sweeper.Failed():
		s.logger.Error().Err(err).Msg("ttl sweeper failed, shutting down")
	case err := <-s.cache.Failed():
		s.logger.Error().Err(err).Msg("cache worker failed, shutting down")
	}

	return s.shutdownAll()
}

func (s *Supervisor) runAndReport(name string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error().Err(err).Str("worker", name).Msg("worker exited with error")
		select {
		case s.failures <- err:
		default:
		}
	}
}

func (s *Supervisor) shutdownAll() error {
	s.shuttingDown.Trigger()

	if err := s.public.Shutdown(); err != nil {
		s.logger.Warn().Err(err).Msg("public server shutdown error")
	}
	if err := s.adminSrv.Shutdown(); err != nil {
		s.logger.Warn().Err(err).Msg("admin server shutdown error")
	}

	s.sweeper.Stop()

	if s.discovery != nil {
		if err := s.discovery.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("discovery shutdown error")
		}
	}

	// The cache worker's command channel is closed last: the public and
	// admin servers (and the sweeper, and any in-flight upstream fetch)
	// must stop submitting to it first, or Close races a live Submit.
	s.cache.Close()

	return nil
}
