package channel

import (
	"fmt"
	"math/big"
)

// KeyExchangeInit is the first message of the two-message key exchange. It
// carries only the initiator's public key.
type KeyExchangeInit struct {
	From      string `json:"from"`
	To        string `json:"to"`
	PublicKey string `json:"publicKey"`
}

// KeyExchangeResponse is the second message of the key exchange, carrying
// the responder's public key back to the initiator.
type KeyExchangeResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	PublicKey string `json:"publicKey"`
}

// Envelope is the wire unit exchanged over an established channel.
type Envelope struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Encrypted *Sealed `json:"encrypted"`
	Seq       uint64  `json:"sequence"`
	Timestamp int64   `json:"timestamp"`
}

// FormatPublicKey serializes a group element for transport.
func FormatPublicKey(pub *big.Int) string {
	return pub.Text(16)
}

// ParsePublicKey reads a group element off the wire.
func ParsePublicKey(s string) (*big.Int, error) {
	pub, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("channel: invalid public key %q", s)
	}

	return pub, nil
}
