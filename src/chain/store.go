package chain

import (
	"sync"

	cm "github.com/agoranet/agora/src/common"
	"github.com/agoranet/agora/src/event"
	"github.com/sirupsen/logrus"
)

// StoredBlockEvent is the payload of event.BlockStored.
type StoredBlockEvent struct {
	Slot int
	Hash string
}

// StoredAnchorEvent is the payload of event.AnchorStored.
type StoredAnchorEvent struct {
	Slot   int
	Status string
}

// Store persists finalized blocks and anchor records. Writes go to the
// durable backend and fall back to in-memory maps when it fails, so a
// storage outage degrades the node instead of stopping it. The fallback is
// a degrade-mode cache, not a replica: it is never reconciled with the
// backend, and callers may observe fallback contents after the backend
// recovers.
//
// No store operation propagates a backend error. Failures are logged,
// counted, and answered with a safe default, because the node must keep
// running while the durable store is unreachable.
type Store struct {
	backend Backend

	fallbackBlocks  map[int]*Block
	fallbackAnchors map[int]*Anchor

	blocksStored  int
	anchorsStored int
	errors        int

	bus    *event.Bus
	logger *logrus.Entry
	lock   sync.Mutex
}

// NewStore creates a Store over the given backend. A nil backend is
// permitted; the store then serves everything from the in-memory tier.
func NewStore(backend Backend, bus *event.Bus, logger *logrus.Entry) *Store {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if bus == nil {
		bus = event.NewBus()
	}

	return &Store{
		backend:         backend,
		fallbackBlocks:  make(map[int]*Block),
		fallbackAnchors: make(map[int]*Anchor),
		bus:             bus,
		logger:          logger.WithField("component", "store"),
	}
}

// StoreBlock persists a finalized block, an idempotent upsert keyed by slot.
// The stored notification is emitted whichever tier took the write; a
// backend failure must not drop a block that can still be served from
// memory.
func (s *Store) StoreBlock(block *Block) {
	if block == nil {
		return
	}

	s.lock.Lock()

	if s.backend == nil {
		s.fallbackBlocks[block.Slot()] = block
	} else if err := s.backend.SetBlock(block); err != nil {
		s.errors++
		s.fallbackBlocks[block.Slot()] = block
		s.logger.WithError(err).WithField("slot", block.Slot()).
			Warn("Backend write failed, block kept in memory")
	}

	s.blocksStored++

	s.lock.Unlock()

	s.bus.Publish(event.BlockStored, StoredBlockEvent{
		Slot: block.Slot(),
		Hash: block.Hex(),
	})
}

// GetBlock returns the block at slot, or nil if no tier holds it.
func (s *Store) GetBlock(slot int) *Block {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.getBlock(slot)
}

func (s *Store) getBlock(slot int) *Block {
	if s.backend != nil {
		block, err := s.backend.GetBlock(slot)
		if err == nil {
			return block
		}
		if !cm.IsStore(err, cm.KeyNotFound) {
			s.errors++
			s.logger.WithError(err).WithField("slot", slot).Warn("Backend read failed")
		}
	}

	return s.fallbackBlocks[slot]
}

// GetBlocks returns the blocks with fromSlot <= slot <= toSlot in ascending
// slot order. When the backend query fails the range is served from the
// fallback tier.
func (s *Store) GetBlocks(fromSlot, toSlot int) []*Block {
	s.lock.Lock()
	defer s.lock.Unlock()

	if fromSlot > toSlot {
		return []*Block{}
	}

	if s.backend != nil {
		blocks, err := s.backend.GetBlocks(fromSlot, toSlot)
		if err == nil {
			return blocks
		}
		s.errors++
		s.logger.WithError(err).Warn("Backend range read failed")
	}

	blocks := []*Block{}
	for slot := fromSlot; slot <= toSlot; slot++ {
		if block, ok := s.fallbackBlocks[slot]; ok {
			blocks = append(blocks, block)
		}
	}

	return blocks
}

// GetLatestBlock returns the block with the maximum slot, or nil when no
// block has been stored.
func (s *Store) GetLatestBlock() *Block {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.backend != nil {
		block, err := s.backend.GetLatestBlock()
		if err == nil {
			return block
		}
		if !cm.IsStore(err, cm.Empty) {
			s.errors++
			s.logger.WithError(err).Warn("Backend read failed")
		}
	}

	var latest *Block
	for _, block := range s.fallbackBlocks {
		if latest == nil || block.Slot() > latest.Slot() {
			latest = block
		}
	}

	return latest
}

// StoreAnchor upserts the anchor record for a slot, merging with any
// existing record: a confirmed status is stored as anchored, non-empty
// values win for txSignature, merkleRoot, and cluster, and anchoredAt is
// stamped on the transition into anchored.
func (s *Store) StoreAnchor(anchor *Anchor) {
	if anchor == nil {
		return
	}

	s.lock.Lock()

	existing := s.getAnchor(anchor.Slot)
	merged := merge(existing, anchor)

	if s.backend == nil {
		s.fallbackAnchors[merged.Slot] = merged
	} else if err := s.backend.SetAnchor(merged); err != nil {
		s.errors++
		s.fallbackAnchors[merged.Slot] = merged
		s.logger.WithError(err).WithField("slot", merged.Slot).
			Warn("Backend write failed, anchor kept in memory")
	}

	s.anchorsStored++

	s.lock.Unlock()

	s.bus.Publish(event.AnchorStored, StoredAnchorEvent{
		Slot:   merged.Slot,
		Status: merged.Status,
	})
}

// GetAnchor returns the anchor record for slot, or nil if no tier holds it.
func (s *Store) GetAnchor(slot int) *Anchor {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.getAnchor(slot)
}

func (s *Store) getAnchor(slot int) *Anchor {
	if s.backend != nil {
		anchor, err := s.backend.GetAnchor(slot)
		if err == nil {
			return anchor
		}
		if !cm.IsStore(err, cm.KeyNotFound) {
			s.errors++
			s.logger.WithError(err).WithField("slot", slot).Warn("Backend read failed")
		}
	}

	return s.fallbackAnchors[slot]
}

// GetFailedAnchors returns up to limit failed anchors, oldest first, each
// joined with its block's hash. It is the retry sweep's work queue.
func (s *Store) GetFailedAnchors(limit int) []*FailedAnchor {
	s.lock.Lock()
	defer s.lock.Unlock()

	var anchors []*Anchor

	if s.backend != nil {
		backendAnchors, err := s.backend.GetFailedAnchors(limit)
		if err == nil {
			anchors = backendAnchors
		} else {
			s.errors++
			s.logger.WithError(err).Warn("Backend failed-anchor scan failed")
		}
	}

	if anchors == nil {
		for _, anchor := range s.fallbackAnchors {
			if anchor.Status == StatusFailed {
				anchors = append(anchors, anchor)
			}
		}

		sortFailedAnchors(anchors)

		if limit > 0 && len(anchors) > limit {
			anchors = anchors[:limit]
		}
	}

	failed := []*FailedAnchor{}
	for _, anchor := range anchors {
		hash := ""
		if block := s.getBlock(anchor.Slot); block != nil {
			hash = block.Hex()
		}

		failed = append(failed, &FailedAnchor{
			Anchor:    anchor,
			BlockHash: hash,
		})
	}

	return failed
}

// Stats returns the store's activity counters.
func (s *Store) Stats() map[string]int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return map[string]int{
		"blocks_stored":   s.blocksStored,
		"anchors_stored":  s.anchorsStored,
		"errors":          s.errors,
		"fallback_blocks": len(s.fallbackBlocks),
	}
}

// Close releases the backend. The store remains usable afterwards on its
// in-memory tier alone.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.backend == nil {
		return nil
	}

	backend := s.backend
	s.backend = nil

	return backend.Close()
}
