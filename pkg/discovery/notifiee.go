package discovery

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// connNotifiee bridges libp2p's swarm-level connection notifications
// into the Behaviour's peer bookkeeping. Only connection open/close are
// meaningful here; listen-address changes are not tracked.
type connNotifiee struct {
	behaviour *Behaviour
}

func (n *connNotifiee) Connected(_ network.Network, c network.Conn) {
	n.behaviour.onConnected(c.RemotePeer())
}

func (n *connNotifiee) Disconnected(_ network.Network, c network.Conn) {
	n.behaviour.onDisconnected(c.RemotePeer())
}

func (n *connNotifiee) Listen(network.Network, multiaddr.Multiaddr) {}

func (n *connNotifiee) ListenClose(network.Network, multiaddr.Multiaddr) {}

// mdnsNotifee bridges mDNS peer discoveries into the DHT's peerstore,
// mirroring the source's handle_mdns_event: every discovered peer's
// addresses are registered unconditionally, with staleness resolved by
// natural peerstore TTL expiry rather than an explicit expiry handler.
type mdnsNotifee struct {
	behaviour *Behaviour
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	for _, addr := range pi.Addrs {
		n.behaviour.AddAddress(pi.ID, addr)
	}
}
