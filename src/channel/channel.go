package channel

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

// contextPrefix namespaces the key-derivation context so keys derived for
// channels can never collide with keys derived for other purposes from the
// same Diffie-Hellman secret.
const contextPrefix = "agora-channel"

// ErrNotEstablished is returned by Send and Receive before the key exchange
// has completed on both sides.
var ErrNotEstablished = errors.New("channel: not established")

// A Channel is an encrypted two-party session. It is created with a fresh
// key pair and becomes established exactly once, when the remote public key
// is received and the shared secret and symmetric key are computed.
type Channel struct {
	localID string
	peerID  string

	keyPair      *KeyPair
	peerPublic   *big.Int
	sharedSecret *big.Int
	key          []byte

	established bool
	seq         uint64

	lock sync.Mutex
}

// NewChannel creates a not-yet-established channel towards peerID, with a
// fresh ephemeral key pair.
func NewChannel(localID, peerID string) (*Channel, error) {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	return &Channel{
		localID: localID,
		peerID:  peerID,
		keyPair: keyPair,
	}, nil
}

// LocalID returns the identity of this side of the channel.
func (c *Channel) LocalID() string {
	return c.localID
}

// PeerID returns the identity of the remote side of the channel.
func (c *Channel) PeerID() string {
	return c.peerID
}

// PublicKey returns the local public key, the only value that crosses the
// wire during the key exchange.
func (c *Channel) PublicKey() *big.Int {
	return c.keyPair.Public
}

// Established indicates whether the key exchange has completed.
func (c *Channel) Established() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.established
}

// ReceivePublicKey records the remote public key, computes the shared
// secret, and derives the symmetric key, establishing the channel. Calling
// it again on an established channel is a no-op; both sides of a channel
// derive the identical key because the derivation context is built from the
// sorted pair of endpoint identities.
func (c *Channel) ReceivePublicKey(peerPublic *big.Int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.established {
		return
	}

	c.peerPublic = peerPublic
	c.sharedSecret = ComputeSharedSecret(c.keyPair.Private, peerPublic)
	c.key = DeriveKey(c.sharedSecret, pairContext(c.localID, c.peerID))
	c.established = true
}

// Send encrypts a message and wraps it in an Envelope carrying the next
// sequence number. The sequence strictly increases with every successful
// send and is never reused within the channel's lifetime.
func (c *Channel) Send(message interface{}) (*Envelope, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.established {
		return nil, ErrNotEstablished
	}

	sealed, err := Encrypt(message, c.key)
	if err != nil {
		return nil, err
	}

	c.seq++

	return &Envelope{
		From:      c.localID,
		To:        c.peerID,
		Encrypted: sealed,
		Seq:       c.seq,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Receive decrypts an inbound envelope. Authentication failures surface as
// ErrAuthentication from the cipher layer.
func (c *Channel) Receive(envelope *Envelope) (interface{}, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.established {
		return nil, ErrNotEstablished
	}

	return Decrypt(envelope.Encrypted, c.key)
}

// pairContext builds the key-derivation context for a channel between a and
// b. The identities are sorted so both endpoints derive the same context
// regardless of who initiated.
func pairContext(a, b string) string {
	if b < a {
		a, b = b, a
	}

	return contextPrefix + ":" + a + ":" + b
}
