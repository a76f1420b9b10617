package consensus

import (
	"fmt"
	"sync"

	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/peers"
	"github.com/sirupsen/logrus"
)

// quorumRatio is the share of total engagement score that must back a
// proposal before it is finalized (inverse golden ratio).
const quorumRatio = 0.618033988749895

// InmemConsensus is a single-process consensus engine. Registered validators
// are assumed live and backing every proposal; tests withhold weight with
// SetDissent to exercise the quorum threshold. It is not a BFT protocol.
type InmemConsensus struct {
	sync.Mutex

	validators *peers.Peers

	eScore  float64
	started bool

	currentSlot   int
	finalizedSlot int

	// dissent is the engagement-score weight withheld from every proposal.
	dissent float64

	blocksProposed  int
	blocksFinalized int

	onFinalized func(block *chain.Block)
	onConfirmed func(block *chain.Block)
	onStarted   func()

	logger *logrus.Entry
}

// NewInmemConsensus creates a stopped engine with an empty validator set.
func NewInmemConsensus(logger *logrus.Entry) *InmemConsensus {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemConsensus{
		validators: peers.NewPeers(),
		logger:     logger.WithField("component", "consensus"),
	}
}

// Start implements the Consensus interface. The in-memory engine's first
// round begins immediately, so the OnStarted callback fires before Start
// returns.
func (c *InmemConsensus) Start(eScore float64) error {
	c.Lock()
	if c.started {
		c.Unlock()
		return fmt.Errorf("consensus already started")
	}
	c.started = true
	c.eScore = eScore
	fn := c.onStarted
	c.Unlock()

	c.logger.WithField("e_score", eScore).Debug("Consensus started")

	if fn != nil {
		fn()
	}

	return nil
}

// Stop implements the Consensus interface.
func (c *InmemConsensus) Stop() {
	c.Lock()
	c.started = false
	c.Unlock()

	c.logger.Debug("Consensus stopped")
}

// RegisterValidator implements the Consensus interface.
func (c *InmemConsensus) RegisterValidator(validator *peers.Peer) {
	if validator == nil {
		return
	}

	c.validators.AddPeer(validator)

	c.logger.WithFields(logrus.Fields{
		"moniker": validator.Moniker,
		"e_score": validator.EScore,
	}).Debug("Validator registered")
}

// RemoveValidator implements the Consensus interface.
func (c *InmemConsensus) RemoveValidator(pubKeyHex string) {
	c.validators.RemovePeerByPubKey(pubKeyHex)

	c.logger.WithField("pub_key", pubKeyHex).Debug("Validator removed")
}

// UpdateValidatorEScore implements the Consensus interface.
func (c *InmemConsensus) UpdateValidatorEScore(pubKeyHex string, eScore float64) bool {
	return c.validators.UpdateEScore(pubKeyHex, eScore)
}

// SetDissent sets the engagement-score weight withheld from every proposal.
// Used by tests to push proposals under the quorum threshold.
func (c *InmemConsensus) SetDissent(weight float64) {
	c.Lock()
	c.dissent = weight
	c.Unlock()
}

// ProposeBlock implements the Consensus interface. A proposal is confirmed
// when accepted for voting, and finalized when the backing weight reaches
// quorumRatio of the total engagement score.
func (c *InmemConsensus) ProposeBlock(block *chain.Block) (*chain.Block, error) {
	if block == nil {
		return nil, fmt.Errorf("consensus: nil block")
	}

	c.Lock()

	if !c.started {
		c.Unlock()
		return nil, ErrNotStarted
	}

	if c.finalizedSlot > 0 && block.Slot() <= c.finalizedSlot {
		c.Unlock()
		return nil, fmt.Errorf("consensus: slot %d already finalized", block.Slot())
	}

	if block.Slot() > c.currentSlot {
		c.currentSlot = block.Slot()
	}
	c.blocksProposed++

	total := c.totalWeight()
	backing := total - c.dissent
	if backing < 0 {
		backing = 0
	}

	pass := backing >= quorumRatio*total
	if pass {
		c.finalizedSlot = block.Slot()
		c.blocksFinalized++
	}

	confirmed := c.onConfirmed
	finalized := c.onFinalized
	c.Unlock()

	if confirmed != nil {
		confirmed(block)
	}

	if !pass {
		c.logger.WithFields(logrus.Fields{
			"slot":    block.Slot(),
			"backing": backing,
			"total":   total,
		}).Debug("Proposal below quorum")
		return nil, ErrNoQuorum
	}

	c.logger.WithFields(logrus.Fields{
		"slot": block.Slot(),
		"hash": block.Hex(),
	}).Debug("Block finalized")

	if finalized != nil {
		finalized(block)
	}

	return block, nil
}

// totalWeight must be called with the lock held.
func (c *InmemConsensus) totalWeight() float64 {
	if c.validators.Len() == 0 {
		return c.eScore
	}
	return c.validators.TotalEScore()
}

// CurrentSlot implements the Consensus interface.
func (c *InmemConsensus) CurrentSlot() int {
	c.Lock()
	defer c.Unlock()
	return c.currentSlot
}

// LastFinalizedSlot implements the Consensus interface.
func (c *InmemConsensus) LastFinalizedSlot() int {
	c.Lock()
	defer c.Unlock()
	return c.finalizedSlot
}

// ValidatorCount implements the Consensus interface.
func (c *InmemConsensus) ValidatorCount() int {
	return c.validators.Len()
}

// OnBlockFinalized implements the Consensus interface.
func (c *InmemConsensus) OnBlockFinalized(fn func(block *chain.Block)) {
	c.Lock()
	c.onFinalized = fn
	c.Unlock()
}

// OnBlockConfirmed implements the Consensus interface.
func (c *InmemConsensus) OnBlockConfirmed(fn func(block *chain.Block)) {
	c.Lock()
	c.onConfirmed = fn
	c.Unlock()
}

// OnStarted implements the Consensus interface.
func (c *InmemConsensus) OnStarted(fn func()) {
	c.Lock()
	c.onStarted = fn
	c.Unlock()
}

// Stats returns engine counters for stats reporting.
func (c *InmemConsensus) Stats() map[string]int {
	c.Lock()
	defer c.Unlock()
	return map[string]int{
		"blocks_proposed":  c.blocksProposed,
		"blocks_finalized": c.blocksFinalized,
	}
}
