package net

import "errors"

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrPeerNotConnected is returned by SendTo when there is no live
	// connection to the target peer.
	ErrPeerNotConnected = errors.New("peer not connected")
)

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {
	// Listen starts accepting inbound connections. It does not block.
	Listen() error

	// Close permanently shuts the transport down and severs all peer
	// connections.
	Close() error

	// ConnectToPeer dials the peer at the given address and performs the
	// identification handshake.
	ConnectToPeer(addr string) error

	// SendTo delivers a message to a connected peer. The transport stamps
	// the From field.
	SendTo(peerID string, msg *Message) error

	// BroadcastBlock sends a BLOCK message to every connected peer.
	BroadcastBlock(payload []byte)

	// BroadcastJudgment sends a JUDGMENT message to every connected peer.
	BroadcastJudgment(payload []byte)

	// BroadcastPattern sends a PATTERN message to every connected peer.
	BroadcastPattern(payload []byte)

	// ConnectedPeers returns the IDs of the currently connected peers.
	ConnectedPeers() []string

	// LocalAddr returns the address other nodes should use to connect to
	// this transport.
	LocalAddr() string

	// Info returns transport counters for stats reporting.
	Info() map[string]string

	// Consumer returns a channel that can be used to consume inbound
	// messages.
	Consumer() <-chan Message

	// OnConnect registers a callback invoked when a peer connection is
	// established. It must be set before Listen or ConnectToPeer.
	OnConnect(fn func(peerID string))

	// OnDisconnect registers a callback invoked when a peer connection is
	// lost.
	OnDisconnect(fn func(peerID string))

	// OnError registers a callback invoked on transport-level failures that
	// are not tied to a single Send call.
	OnError(fn func(err error))
}
