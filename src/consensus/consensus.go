// Package consensus defines the interface between a node and its consensus
// engine, and provides an in-memory engine used for tests and standalone
// operation.
package consensus

import (
	"errors"

	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/peers"
)

var (
	// ErrNotStarted is returned when blocks are proposed to an engine that
	// is not running.
	ErrNotStarted = errors.New("consensus not started")

	// ErrNoQuorum is returned when a proposal does not gather enough
	// engagement-score weight to be finalized.
	ErrNoQuorum = errors.New("no quorum")
)

// Consensus is the engine a node drives blocks through. Implementations
// track the validator set, the slot heights, and decide when a proposed
// block is final.
type Consensus interface {
	// Start begins participating with the given engagement score.
	Start(eScore float64) error

	// Stop halts the engine. Pending proposals are dropped.
	Stop()

	// RegisterValidator adds a validator to the active set.
	RegisterValidator(validator *peers.Peer)

	// RemoveValidator removes a validator from the active set by public key.
	RemoveValidator(pubKeyHex string)

	// UpdateValidatorEScore adjusts a registered validator's engagement
	// score. It reports whether the validator was known.
	UpdateValidatorEScore(pubKeyHex string, eScore float64) bool

	// ProposeBlock submits a block for the validators to finalize. It
	// returns the finalized block, or ErrNoQuorum when the proposal did not
	// gather enough weight.
	ProposeBlock(block *chain.Block) (*chain.Block, error)

	// CurrentSlot returns the highest slot the engine has observed.
	CurrentSlot() int

	// LastFinalizedSlot returns the slot of the last finalized block.
	LastFinalizedSlot() int

	// ValidatorCount returns the size of the active validator set.
	ValidatorCount() int

	// OnBlockFinalized registers a callback invoked when a block reaches
	// quorum.
	OnBlockFinalized(fn func(block *chain.Block))

	// OnBlockConfirmed registers a callback invoked when a proposal is
	// accepted for voting, before quorum is known.
	OnBlockConfirmed(fn func(block *chain.Block))

	// OnStarted registers a callback invoked when the engine begins its
	// first round.
	OnStarted(fn func())
}
