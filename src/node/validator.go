package node

import (
	"crypto/ecdsa"

	"github.com/agoranet/agora/src/crypto/keys"
	"github.com/agoranet/agora/src/peers"
)

//Validator holds the identity of the local node. The derived forms of the
//public key are computed once at construction; a validator never changes key.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       uint32
	pubBytes []byte
	pubHex   string
}

//NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:      key,
		Moniker:  moniker,
		id:       keys.PublicKeyID(&key.PublicKey),
		pubBytes: keys.FromPublicKey(&key.PublicKey),
		pubHex:   keys.PublicKeyHex(&key.PublicKey),
	}
}

//ID returns the validator's numeric ID, derived from its public key
func (v *Validator) ID() uint32 {
	return v.id
}

//PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	return v.pubBytes
}

//PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	return v.pubHex
}

//AsPeer renders the validator as a peer record for registries and
//validator-update announcements
func (v *Validator) AsPeer(netAddr string, eScore float64) *peers.Peer {
	peer := peers.NewPeer(v.PublicKeyHex(), netAddr, v.Moniker)
	peer.SetEScore(eScore)
	return peer
}
