package channel

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager owns one Channel per remote identity and drives the two-message
// key-exchange handshake. It is created by the node and passed to whatever
// components need secured point-to-point messaging; there is no ambient
// shared instance.
//
// Send and receive fail closed: a missing or unestablished channel, or an
// envelope that does not authenticate, is logged and dropped rather than
// surfaced as an error, because inter-peer traffic must never crash the
// node.
type Manager struct {
	localID  string
	channels map[string]*Channel

	messagesSent     int
	messagesReceived int
	errors           int

	logger *logrus.Entry
	lock   sync.Mutex
}

// NewManager creates a Manager for the given local identity.
func NewManager(localID string, logger *logrus.Entry) *Manager {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Manager{
		localID:  localID,
		channels: make(map[string]*Channel),
		logger:   logger.WithField("component", "channels"),
	}
}

// LocalID returns the identity this manager speaks as.
func (m *Manager) LocalID() string {
	return m.localID
}

// InitiateKeyExchange opens a channel towards peerID and returns the init
// message to send. It returns nil if a channel for peerID already exists,
// whether or not its handshake has completed.
func (m *Manager) InitiateKeyExchange(peerID string) (*KeyExchangeInit, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.channels[peerID]; ok {
		return nil, nil
	}

	ch, err := NewChannel(m.localID, peerID)
	if err != nil {
		m.errors++
		return nil, err
	}

	m.channels[peerID] = ch

	m.logger.WithField("peer", peerID).Debug("Initiating key exchange")

	return &KeyExchangeInit{
		From:      m.localID,
		To:        peerID,
		PublicKey: FormatPublicKey(ch.PublicKey()),
	}, nil
}

// HandleKeyExchangeInit processes a peer's init message. The channel is
// established before the response, carrying this side's public key, is
// returned.
func (m *Manager) HandleKeyExchangeInit(msg *KeyExchangeInit) (*KeyExchangeResponse, error) {
	peerPublic, err := ParsePublicKey(msg.PublicKey)
	if err != nil {
		m.countError()
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	ch, ok := m.channels[msg.From]
	if !ok {
		ch, err = NewChannel(m.localID, msg.From)
		if err != nil {
			m.errors++
			return nil, err
		}
		m.channels[msg.From] = ch
	}

	ch.ReceivePublicKey(peerPublic)

	m.logger.WithField("peer", msg.From).Debug("Established channel (responder)")

	return &KeyExchangeResponse{
		From:      m.localID,
		To:        msg.From,
		PublicKey: FormatPublicKey(ch.PublicKey()),
	}, nil
}

// HandleKeyExchangeResponse completes a key exchange started by
// InitiateKeyExchange.
func (m *Manager) HandleKeyExchangeResponse(msg *KeyExchangeResponse) error {
	peerPublic, err := ParsePublicKey(msg.PublicKey)
	if err != nil {
		m.countError()
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	ch, ok := m.channels[msg.From]
	if !ok {
		m.errors++
		return fmt.Errorf("channel: no pending key exchange with %s", msg.From)
	}

	ch.ReceivePublicKey(peerPublic)

	m.logger.WithField("peer", msg.From).Debug("Established channel (initiator)")

	return nil
}

// SendSecure encrypts a message for peerID and returns the envelope to
// transmit. It returns nil if no established channel exists or encryption
// fails.
func (m *Manager) SendSecure(peerID string, message interface{}) *Envelope {
	m.lock.Lock()
	defer m.lock.Unlock()

	ch, ok := m.channels[peerID]
	if !ok || !ch.Established() {
		m.errors++
		m.logger.WithField("peer", peerID).Warn("SendSecure without established channel")
		return nil
	}

	envelope, err := ch.Send(message)
	if err != nil {
		m.errors++
		m.logger.WithError(err).WithField("peer", peerID).Error("Encrypting message")
		return nil
	}

	m.messagesSent++

	return envelope
}

// ReceiveSecure decrypts an inbound envelope. The second return value
// reports whether decryption succeeded; a missing channel or an envelope
// that fails authentication is logged and dropped.
func (m *Manager) ReceiveSecure(envelope *Envelope) (interface{}, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	ch, ok := m.channels[envelope.From]
	if !ok || !ch.Established() {
		m.errors++
		m.logger.WithField("peer", envelope.From).Warn("Envelope without established channel")
		return nil, false
	}

	message, err := ch.Receive(envelope)
	if err != nil {
		m.errors++
		m.logger.WithError(err).WithFields(logrus.Fields{
			"peer": envelope.From,
			"seq":  envelope.Seq,
		}).Warn("Dropping envelope")
		return nil, false
	}

	m.messagesReceived++

	return message, true
}

// BroadcastSecure encrypts the message once per established channel and
// returns the envelopes. Channels still waiting on their handshake are
// skipped silently.
func (m *Manager) BroadcastSecure(message interface{}) []*Envelope {
	m.lock.Lock()
	defer m.lock.Unlock()

	envelopes := []*Envelope{}

	for peerID, ch := range m.channels {
		if !ch.Established() {
			continue
		}

		envelope, err := ch.Send(message)
		if err != nil {
			m.errors++
			m.logger.WithError(err).WithField("peer", peerID).Error("Encrypting broadcast")
			continue
		}

		m.messagesSent++
		envelopes = append(envelopes, envelope)
	}

	return envelopes
}

// Established reports whether a completed channel exists for peerID.
func (m *Manager) Established(peerID string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	ch, ok := m.channels[peerID]

	return ok && ch.Established()
}

// EstablishedPeers lists the identities with a completed handshake.
func (m *Manager) EstablishedPeers() []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	peers := []string{}
	for peerID, ch := range m.channels {
		if ch.Established() {
			peers = append(peers, peerID)
		}
	}

	return peers
}

// Info returns counters describing the manager's activity.
func (m *Manager) Info() map[string]int {
	m.lock.Lock()
	defer m.lock.Unlock()

	established := 0
	for _, ch := range m.channels {
		if ch.Established() {
			established++
		}
	}

	return map[string]int{
		"channels":          len(m.channels),
		"established":       established,
		"messages_sent":     m.messagesSent,
		"messages_received": m.messagesReceived,
		"errors":            m.errors,
	}
}

func (m *Manager) countError() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.errors++
}
