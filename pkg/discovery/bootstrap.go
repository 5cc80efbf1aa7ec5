package discovery

import (
	"context"
	"time"

	"github.com/nyx-network/gateway/pkg/metrics"
)

// peerCountGate is the connected-peer threshold below which the
// scheduler will attempt a bootstrap; at or above it, bootstraps are
// skipped to avoid thrashing a healthy routing table.
const peerCountGate = 12

const initialBootstrapDelay = 5 * time.Second

// gateRecheckInterval is how soon the scheduler rechecks the peer-count
// gate once a deadline has elapsed but the gate was not met. The Armed
// state's deadline itself is left unchanged in this case (§4.8's table);
// this is the Go translation of the source's continuously-polled
// `next_bootstrap.map_or(...) && peer_count < gate` check into a
// goroutine-plus-timer model — a short recheck rather than a fresh
// full-interval deadline. Var, not const, so tests can shrink it.
var gateRecheckInterval = 1 * time.Second

// bootstrapScheduler drives the DHT's periodic bootstrap attempts
// through three states: idle (bootstrapper nodes never schedule one),
// armed (waiting out a deadline), and in-flight (a bootstrap call is
// outstanding). It is a direct translation of the source's poll-driven
// state machine into a goroutine plus timer, since Go has no equivalent
// of libp2p-rust's NetworkBehaviour::poll to piggyback on.
type bootstrapScheduler struct {
	behaviour    *Behaviour
	interval     time.Duration
	initialDelay time.Duration
	stopCh       chan struct{}
	failure      chan error
}

func newBootstrapScheduler(b *Behaviour, isBootstrapper bool, interval time.Duration) *bootstrapScheduler {
	s := &bootstrapScheduler{
		behaviour:    b,
		interval:     interval,
		initialDelay: initialBootstrapDelay,
		stopCh:       make(chan struct{}),
		failure:      make(chan error, 1),
	}
	if isBootstrapper {
		// Idle: a bootstrapper node never schedules its own bootstrap.
		close(s.stopCh)
	}
	return s
}

// Failed reports a failure signal, reserved for future fatal bootstrap
// conditions; the scheduler currently treats every bootstrap error as
// recoverable via backoff, per the source's Armed/InFlight transitions.
func (s *bootstrapScheduler) Failed() <-chan error { return s.failure }

func (s *bootstrapScheduler) stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// run is the Armed/InFlight loop. It sleeps out the initial delay, then
// on each deadline checks the peer-count gate before attempting a
// bootstrap; success rearms after interval, failure rearms after 2x
// interval, and the gate being unmet leaves the deadline unchanged so
// the next tick rechecks it.
func (s *bootstrapScheduler) run() {
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			if s.behaviour.peerCount() >= peerCountGate {
				// Remain Armed with the deadline unchanged: recheck soon
				// rather than rearming a fresh full interval, so recovery
				// isn't delayed by up to bootstrap_interval once the peer
				// count drops back below the gate.
				timer.Reset(gateRecheckInterval)
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			err := s.behaviour.dht.Bootstrap(ctx)
			cancel()

			if err != nil {
				s.behaviour.logger.Warn().Err(err).Msg("bootstrap failed")
				metrics.DiscoveryBootstrapTotal.WithLabelValues("err").Inc()
				timer.Reset(2 * s.interval)
			} else {
				s.behaviour.logger.Info().Msg("bootstrap complete")
				metrics.DiscoveryBootstrapTotal.WithLabelValues("ok").Inc()
				timer.Reset(s.interval)
			}
		}
	}
}
