// Package discovery wires the gateway's libp2p host into a Kademlia
// routing table, an optional mDNS local-discovery sub-behavior, and a
// bootstrap scheduler. It reports Connected/Disconnected transitions to
// pkg/events so other components (admin introspection, metrics) can
// observe the peer set without coupling to libp2p directly.
package discovery

import (
	"context"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"github.com/nyx-network/gateway/pkg/events"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/metrics"
)

// KadProtocolID is handed to the DHT as its protocol prefix, keeping this
// overlay distinct from the public IPFS network's so the two never
// interop. The DHT library derives the protocol ID it negotiates on the
// wire from this prefix, so the negotiated ID is not this exact string.
const KadProtocolID = protocol.ID("/ursa/kad/0.0.1")

// ReplicationFactor is the Kademlia bucket replication factor (k).
const ReplicationFactor = 8

const mdnsServiceTag = "ursa-gateway-mdns"

// Config configures a Behaviour.
type Config struct {
	BootstrapPeers    []peer.AddrInfo
	EnableMDNS        bool
	IsBootstrapper    bool
	BootstrapInterval time.Duration
}

// Behaviour composes a Kademlia DHT, an optional mDNS sub-behavior, and a
// bootstrap scheduler over a libp2p host.
type Behaviour struct {
	host host.Host
	dht  *dht.IpfsDHT
	mdns mdns.Service

	broker *events.Broker

	mu       sync.RWMutex
	peers    map[peer.ID]bool
	peerInfo map[peer.ID][]multiaddr.Multiaddr

	bootstrap *bootstrapScheduler
	logger    zerolog.Logger
}

// New builds a Behaviour over h, running the DHT in server mode with
// KadProtocolID and ReplicationFactor, and registers bootstrapPeers as
// initial DHT addresses.
func New(ctx context.Context, h host.Host, broker *events.Broker, cfg Config) (*Behaviour, error) {
	kad, err := dht.New(ctx, h,
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(KadProtocolID),
		dht.BucketSize(ReplicationFactor),
	)
	if err != nil {
		return nil, err
	}

	b := &Behaviour{
		host:     h,
		dht:      kad,
		broker:   broker,
		peers:    make(map[peer.ID]bool),
		peerInfo: make(map[peer.ID][]multiaddr.Multiaddr),
		logger:   log.WithComponent("discovery"),
	}

	for _, pi := range cfg.BootstrapPeers {
		h.Peerstore().AddAddrs(pi.ID, pi.Addrs, time.Hour)
	}

	h.Network().Notify(&connNotifiee{behaviour: b})

	if cfg.EnableMDNS {
		svc := mdns.NewMdnsService(h, mdnsServiceTag, &mdnsNotifee{behaviour: b})
		b.mdns = svc
	}

	interval := cfg.BootstrapInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	b.bootstrap = newBootstrapScheduler(b, cfg.IsBootstrapper, interval)

	return b, nil
}

// Start begins the mDNS sub-behavior (if enabled) and the bootstrap
// scheduler. The DHT itself has already begun serving as of New.
func (b *Behaviour) Start() error {
	if b.mdns != nil {
		if err := b.mdns.Start(); err != nil {
			return err
		}
	}
	go b.bootstrap.run()
	return nil
}

// Close tears down the bootstrap scheduler, mDNS service, and DHT.
func (b *Behaviour) Close() error {
	b.bootstrap.stop()
	if b.mdns != nil {
		_ = b.mdns.Close()
	}
	return b.dht.Close()
}

// Peers returns the current connected peer set.
func (b *Behaviour) Peers() []peer.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]peer.ID, 0, len(b.peers))
	for p := range b.peers {
		out = append(out, p)
	}
	return out
}

// PeerInfo returns the known addresses for a connected peer as of its
// last ConnectionEstablished event. It may be stale relative to the
// peerstore's live view; callers that need current addresses should
// query AddressesOfPeer instead.
func (b *Behaviour) PeerInfo(p peer.ID) ([]multiaddr.Multiaddr, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addrs, ok := b.peerInfo[p]
	return addrs, ok
}

// AddressesOfPeer merges addresses known to the DHT routing table and
// (if enabled) the mDNS sub-behavior for p.
func (b *Behaviour) AddressesOfPeer(p peer.ID) []multiaddr.Multiaddr {
	return b.host.Peerstore().Addrs(p)
}

// AddAddress records address as reachable for p in the host's peerstore,
// which is where the DHT looks up dial addresses. It does not insert p
// into the DHT routing table. The mDNS notifee uses it; bootstrap peers
// are written to the peerstore directly by New.
func (b *Behaviour) AddAddress(p peer.ID, addr multiaddr.Multiaddr) {
	b.host.Peerstore().AddAddr(p, addr, time.Hour)
}

func (b *Behaviour) onConnected(p peer.ID) {
	b.mu.Lock()
	b.peers[p] = true
	b.peerInfo[p] = b.host.Peerstore().Addrs(p)
	b.mu.Unlock()

	metrics.DiscoveryPeersConnected.Set(float64(len(b.Peers())))
	b.broker.Publish(&events.PeerEvent{Peer: p.String(), Kind: events.KindConnected})
}

func (b *Behaviour) onDisconnected(p peer.ID) {
	b.mu.Lock()
	delete(b.peers, p)
	delete(b.peerInfo, p)
	b.mu.Unlock()

	metrics.DiscoveryPeersConnected.Set(float64(len(b.Peers())))
	b.broker.Publish(&events.PeerEvent{Peer: p.String(), Kind: events.KindDisconnected})
}

func (b *Behaviour) peerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

var _ network.Notifiee = (*connNotifiee)(nil)
