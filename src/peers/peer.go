package peers

import (
	"github.com/agoranet/agora/src/common"
)

// DefaultEScore is the reputation weight assigned to a peer before any
// fresher value has been observed.
const DefaultEScore = 75.0

// Peer is a participant in the network, identified by its public key.
type Peer struct {
	ID        uint32  `json:"-"`
	NetAddr   string  `json:"netAddr"`
	PubKeyHex string  `json:"pubKeyHex"`
	Moniker   string  `json:"moniker,omitempty"`
	EScore    float64 `json:"eScore"`
}

// NewPeer creates a Peer with the default eScore.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
		EScore:    DefaultEScore,
	}

	peer.computeID()

	return peer
}

// PubKeyBytes decodes the peer's public key from its hex form.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// SetEScore records a fresher eScore, clamped to [0,100].
func (p *Peer) SetEScore(eScore float64) {
	if eScore < 0 {
		eScore = 0
	}
	if eScore > 100 {
		eScore = 100
	}

	p.EScore = eScore
}

func (p *Peer) computeID() error {
	pubKey, err := p.PubKeyBytes()
	if err != nil {
		return err
	}

	p.ID = common.Hash32(pubKey)

	return nil
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.PubKeyHex != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
