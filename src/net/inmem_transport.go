package net

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// InmemNetwork wires InmemTransports together in-process, to allow nodes to
// be tested without going over a network. Transports are addressed by their
// node ID.
type InmemNetwork struct {
	sync.RWMutex
	transports map[string]*InmemTransport
}

// NewInmemNetwork creates an empty in-memory network.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		transports: make(map[string]*InmemTransport),
	}
}

// NewTransport creates a transport and registers it on the network under the
// given node ID.
func (n *InmemNetwork) NewTransport(id string) *InmemTransport {
	trans := &InmemTransport{
		network:    n,
		localID:    id,
		consumerCh: make(chan Message, 16),
		peers:      make(map[string]*InmemTransport),
		timeout:    50 * time.Millisecond,
	}

	n.Lock()
	n.transports[id] = trans
	n.Unlock()

	return trans
}

func (n *InmemNetwork) lookup(id string) (*InmemTransport, bool) {
	n.RLock()
	defer n.RUnlock()
	trans, ok := n.transports[id]
	return trans, ok
}

func (n *InmemNetwork) remove(id string) {
	n.Lock()
	delete(n.transports, id)
	n.Unlock()
}

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	network    *InmemNetwork
	localID    string
	consumerCh chan Message
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdown   bool

	messagesSent     int
	messagesReceived int

	onConnect    func(peerID string)
	onDisconnect func(peerID string)
	onError      func(err error)
}

// Listen implements the Transport interface. Registration happens at
// construction, so there is nothing to start.
func (i *InmemTransport) Listen() error {
	i.RLock()
	defer i.RUnlock()
	if i.shutdown {
		return ErrTransportShutdown
	}
	return nil
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan Message {
	return i.consumerCh
}

// LocalAddr implements the Transport interface. In-memory transports are
// addressed by node ID.
func (i *InmemTransport) LocalAddr() string {
	return i.localID
}

// ConnectToPeer implements the Transport interface. The address is the
// target's node ID; the connection is symmetric, so both sides observe it.
func (i *InmemTransport) ConnectToPeer(addr string) error {
	i.RLock()
	down := i.shutdown
	i.RUnlock()
	if down {
		return ErrTransportShutdown
	}

	peer, ok := i.network.lookup(addr)
	if !ok || peer == i {
		return fmt.Errorf("failed to connect to peer: %v", addr)
	}

	i.Lock()
	_, known := i.peers[peer.localID]
	i.peers[peer.localID] = peer
	i.Unlock()

	peer.Lock()
	peer.peers[i.localID] = i
	peer.Unlock()

	// Already connected; don't fire the callbacks again.
	if known {
		return nil
	}

	i.fireConnect(peer.localID)
	peer.fireConnect(i.localID)

	return nil
}

// Disconnect severs the connection to a peer on both sides. Used by tests to
// simulate a peer dropping off the network.
func (i *InmemTransport) Disconnect(peerID string) {
	i.Lock()
	peer, ok := i.peers[peerID]
	delete(i.peers, peerID)
	i.Unlock()

	if !ok {
		return
	}

	peer.Lock()
	delete(peer.peers, i.localID)
	peer.Unlock()

	i.fireDisconnect(peerID)
	peer.fireDisconnect(i.localID)
}

// SendTo implements the Transport interface.
func (i *InmemTransport) SendTo(peerID string, msg *Message) error {
	i.RLock()
	if i.shutdown {
		i.RUnlock()
		return ErrTransportShutdown
	}
	peer, ok := i.peers[peerID]
	i.RUnlock()

	if !ok {
		return ErrPeerNotConnected
	}

	out := *msg
	out.From = i.localID
	out.To = peerID

	if err := peer.deliver(out); err != nil {
		return err
	}

	i.Lock()
	i.messagesSent++
	i.Unlock()

	return nil
}

func (i *InmemTransport) deliver(msg Message) error {
	i.RLock()
	if i.shutdown {
		i.RUnlock()
		return ErrTransportShutdown
	}
	ch := i.consumerCh
	timeout := i.timeout
	i.RUnlock()

	select {
	case ch <- msg:
	case <-time.After(timeout):
		return fmt.Errorf("message enqueue timeout")
	}

	i.Lock()
	i.messagesReceived++
	i.Unlock()

	return nil
}

// BroadcastBlock implements the Transport interface.
func (i *InmemTransport) BroadcastBlock(payload []byte) {
	i.broadcast(TypeBlock, payload)
}

// BroadcastJudgment implements the Transport interface.
func (i *InmemTransport) BroadcastJudgment(payload []byte) {
	i.broadcast(TypeJudgment, payload)
}

// BroadcastPattern implements the Transport interface.
func (i *InmemTransport) BroadcastPattern(payload []byte) {
	i.broadcast(TypePattern, payload)
}

func (i *InmemTransport) broadcast(kind string, payload []byte) {
	msg := &Message{
		Type:    kind,
		Payload: payload,
	}
	for _, peerID := range i.ConnectedPeers() {
		if err := i.SendTo(peerID, msg); err != nil {
			i.fireError(fmt.Errorf("broadcast %s to %s: %v", kind, peerID, err))
		}
	}
}

// ConnectedPeers implements the Transport interface.
func (i *InmemTransport) ConnectedPeers() []string {
	i.RLock()
	res := make([]string, 0, len(i.peers))
	for id := range i.peers {
		res = append(res, id)
	}
	i.RUnlock()

	sort.Strings(res)

	return res
}

// Info implements the Transport interface.
func (i *InmemTransport) Info() map[string]string {
	i.RLock()
	defer i.RUnlock()
	return map[string]string{
		"type":              "inmem",
		"addr":              i.localID,
		"peers":             strconv.Itoa(len(i.peers)),
		"messages_sent":     strconv.Itoa(i.messagesSent),
		"messages_received": strconv.Itoa(i.messagesReceived),
	}
}

// OnConnect implements the Transport interface.
func (i *InmemTransport) OnConnect(fn func(peerID string)) {
	i.Lock()
	i.onConnect = fn
	i.Unlock()
}

// OnDisconnect implements the Transport interface.
func (i *InmemTransport) OnDisconnect(fn func(peerID string)) {
	i.Lock()
	i.onDisconnect = fn
	i.Unlock()
}

// OnError implements the Transport interface.
func (i *InmemTransport) OnError(fn func(err error)) {
	i.Lock()
	i.onError = fn
	i.Unlock()
}

func (i *InmemTransport) fireConnect(peerID string) {
	i.RLock()
	fn := i.onConnect
	i.RUnlock()
	if fn != nil {
		fn(peerID)
	}
}

func (i *InmemTransport) fireDisconnect(peerID string) {
	i.RLock()
	fn := i.onDisconnect
	i.RUnlock()
	if fn != nil {
		fn(peerID)
	}
}

func (i *InmemTransport) fireError(err error) {
	i.RLock()
	fn := i.onError
	i.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Close implements the Transport interface. It disconnects from every peer
// and deregisters the transport from the network.
func (i *InmemTransport) Close() error {
	i.Lock()
	if i.shutdown {
		i.Unlock()
		return nil
	}
	i.shutdown = true
	remaining := make([]string, 0, len(i.peers))
	for id := range i.peers {
		remaining = append(remaining, id)
	}
	i.Unlock()

	for _, id := range remaining {
		i.Disconnect(id)
	}

	i.network.remove(i.localID)

	return nil
}
