package net

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const bufSize = math.MaxUint16

// NetworkTransport provides a network-based transport that can be used to
// communicate with other nodes over a stream layer (TCP in production). It
// maintains one persistent connection per peer; a connection is identified
// by a hello exchange before any traffic flows, so messages can be addressed
// by node ID rather than network address.
type NetworkTransport struct {
	connPool     map[string]*netConn
	connPoolLock sync.Mutex

	consumeCh chan Message

	localID string

	logger *logrus.Entry

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration

	messagesSent     int
	messagesReceived int

	onConnect    func(peerID string)
	onDisconnect func(peerID string)
	onError      func(err error)
	callbackLock sync.RWMutex
}

// NewNetworkTransport creates a new network transport with the given stream
// layer and local node ID. The timeout bounds dials and hello exchanges.
func NewNetworkTransport(
	stream StreamLayer,
	localID string,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &NetworkTransport{
		connPool:   make(map[string]*netConn),
		consumeCh:  make(chan Message, 16),
		localID:    localID,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}
}

// Listen implements the Transport interface. It starts accepting inbound
// connections in a background routine and returns immediately.
func (n *NetworkTransport) Listen() error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}
	go n.acceptLoop()
	return nil
}

func (n *NetworkTransport) acceptLoop() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("Accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn runs the responder side of the hello exchange and, on success,
// registers the connection.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	nc := newNetConn(conn)

	conn.SetDeadline(time.Now().Add(n.timeout))

	var hello Message
	if err := nc.dec.Decode(&hello); err != nil {
		n.logger.WithError(err).Error("Failed to read hello")
		conn.Close()
		return
	}

	if hello.Type != typeHello || hello.From == "" {
		n.logger.WithField("type", hello.Type).Error("Unexpected message before hello")
		conn.Close()
		return
	}

	if err := nc.send(&Message{Type: typeHello, From: n.localID}); err != nil {
		n.logger.WithError(err).Error("Failed to send hello")
		conn.Close()
		return
	}

	conn.SetDeadline(time.Time{})

	nc.id = hello.From
	n.addConn(nc)
}

// ConnectToPeer implements the Transport interface. It dials the address,
// runs the initiator side of the hello exchange, and registers the
// connection under the peer ID learned from the hello.
func (n *NetworkTransport) ConnectToPeer(addr string) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	conn, err := n.stream.Dial(addr, n.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to peer: %v", err)
	}

	nc := newNetConn(conn)

	conn.SetDeadline(time.Now().Add(n.timeout))

	if err := nc.send(&Message{Type: typeHello, From: n.localID}); err != nil {
		conn.Close()
		return fmt.Errorf("sending hello to %s: %v", addr, err)
	}

	var hello Message
	if err := nc.dec.Decode(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("reading hello from %s: %v", addr, err)
	}

	if hello.Type != typeHello || hello.From == "" {
		conn.Close()
		return fmt.Errorf("unexpected %s message before hello from %s", hello.Type, addr)
	}

	conn.SetDeadline(time.Time{})

	nc.id = hello.From
	n.addConn(nc)

	return nil
}

func (n *NetworkTransport) addConn(nc *netConn) {
	n.connPoolLock.Lock()
	old := n.connPool[nc.id]
	n.connPool[nc.id] = nc
	n.connPoolLock.Unlock()

	// A reconnection replaces the previous connection silently; the peer was
	// never observed as disconnected.
	if old != nil {
		old.Release()
	} else {
		n.fireConnect(nc.id)
	}

	go n.readLoop(nc)
}

func (n *NetworkTransport) readLoop(nc *netConn) {
	for {
		var msg Message
		if err := nc.dec.Decode(&msg); err != nil {
			n.dropConn(nc, err)
			return
		}

		if msg.Type == typeHello {
			continue
		}

		// The connection was identified during the hello exchange, so stamp
		// the sender from the connection rather than trusting the wire.
		msg.From = nc.id
		msg.To = n.localID

		select {
		case n.consumeCh <- msg:
		case <-n.shutdownCh:
			return
		}

		n.connPoolLock.Lock()
		n.messagesReceived++
		n.connPoolLock.Unlock()
	}
}

// dropConn removes a dead connection from the pool and fires the disconnect
// callback, unless the connection was already replaced by a reconnection or
// the transport is shutting down.
func (n *NetworkTransport) dropConn(nc *netConn, cause error) {
	n.connPoolLock.Lock()
	current, live := n.connPool[nc.id]
	if live && current == nc {
		delete(n.connPool, nc.id)
	}
	n.connPoolLock.Unlock()

	nc.Release()

	if !live || current != nc {
		return
	}

	if n.IsShutdown() {
		return
	}

	if cause != nil && cause != io.EOF {
		n.logger.WithField("peer", nc.id).WithError(cause).Debug("Connection lost")
		n.fireError(fmt.Errorf("connection to %s lost: %v", nc.id, cause))
	}

	n.fireDisconnect(nc.id)
}

// SendTo implements the Transport interface.
func (n *NetworkTransport) SendTo(peerID string, msg *Message) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	n.connPoolLock.Lock()
	nc, ok := n.connPool[peerID]
	n.connPoolLock.Unlock()

	if !ok {
		return ErrPeerNotConnected
	}

	out := *msg
	out.From = n.localID
	out.To = peerID

	if err := nc.send(&out); err != nil {
		n.dropConn(nc, err)
		return err
	}

	n.connPoolLock.Lock()
	n.messagesSent++
	n.connPoolLock.Unlock()

	return nil
}

// BroadcastBlock implements the Transport interface.
func (n *NetworkTransport) BroadcastBlock(payload []byte) {
	n.broadcast(TypeBlock, payload)
}

// BroadcastJudgment implements the Transport interface.
func (n *NetworkTransport) BroadcastJudgment(payload []byte) {
	n.broadcast(TypeJudgment, payload)
}

// BroadcastPattern implements the Transport interface.
func (n *NetworkTransport) BroadcastPattern(payload []byte) {
	n.broadcast(TypePattern, payload)
}

func (n *NetworkTransport) broadcast(kind string, payload []byte) {
	msg := &Message{
		Type:    kind,
		Payload: payload,
	}
	for _, peerID := range n.ConnectedPeers() {
		if err := n.SendTo(peerID, msg); err != nil {
			n.fireError(fmt.Errorf("broadcast %s to %s: %v", kind, peerID, err))
		}
	}
}

// ConnectedPeers implements the Transport interface.
func (n *NetworkTransport) ConnectedPeers() []string {
	n.connPoolLock.Lock()
	res := make([]string, 0, len(n.connPool))
	for id := range n.connPool {
		res = append(res, id)
	}
	n.connPoolLock.Unlock()

	sort.Strings(res)

	return res
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	return n.stream.AdvertiseAddr()
}

// Info implements the Transport interface.
func (n *NetworkTransport) Info() map[string]string {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()
	return map[string]string{
		"type":              "tcp",
		"addr":              n.stream.AdvertiseAddr(),
		"peers":             strconv.Itoa(len(n.connPool)),
		"messages_sent":     strconv.Itoa(n.messagesSent),
		"messages_received": strconv.Itoa(n.messagesReceived),
	}
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan Message {
	return n.consumeCh
}

// OnConnect implements the Transport interface.
func (n *NetworkTransport) OnConnect(fn func(peerID string)) {
	n.callbackLock.Lock()
	n.onConnect = fn
	n.callbackLock.Unlock()
}

// OnDisconnect implements the Transport interface.
func (n *NetworkTransport) OnDisconnect(fn func(peerID string)) {
	n.callbackLock.Lock()
	n.onDisconnect = fn
	n.callbackLock.Unlock()
}

// OnError implements the Transport interface.
func (n *NetworkTransport) OnError(fn func(err error)) {
	n.callbackLock.Lock()
	n.onError = fn
	n.callbackLock.Unlock()
}

func (n *NetworkTransport) fireConnect(peerID string) {
	n.callbackLock.RLock()
	fn := n.onConnect
	n.callbackLock.RUnlock()
	if fn != nil {
		fn(peerID)
	}
}

func (n *NetworkTransport) fireDisconnect(peerID string) {
	n.callbackLock.RLock()
	fn := n.onDisconnect
	n.callbackLock.RUnlock()
	if fn != nil {
		fn(peerID)
	}
}

func (n *NetworkTransport) fireError(err error) {
	n.callbackLock.RLock()
	fn := n.onError
	n.callbackLock.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.shutdown = true

		n.connPoolLock.Lock()
		for _, nc := range n.connPool {
			nc.Release()
		}
		n.connPool = make(map[string]*netConn)
		n.connPoolLock.Unlock()
	}

	return nil
}

// netConn wraps a peer connection with buffered json encoders and decoders.
type netConn struct {
	id       string
	conn     net.Conn
	r        *bufio.Reader
	w        *bufio.Writer
	dec      *json.Decoder
	enc      *json.Encoder
	sendLock sync.Mutex
}

func newNetConn(conn net.Conn) *netConn {
	nc := &netConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, bufSize),
		w:    bufio.NewWriterSize(conn, bufSize),
	}
	nc.dec = json.NewDecoder(nc.r)
	nc.enc = json.NewEncoder(nc.w)
	return nc
}

// send serializes writes so broadcasts and direct sends can share the
// connection.
func (n *netConn) send(msg *Message) error {
	n.sendLock.Lock()
	defer n.sendLock.Unlock()

	if err := n.enc.Encode(msg); err != nil {
		return err
	}

	return n.w.Flush()
}

// Release closes the underlying connection.
func (n *netConn) Release() error {
	return n.conn.Close()
}
