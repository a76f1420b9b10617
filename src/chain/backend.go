package chain

import "fmt"

const (
	blockPrefix  = "block"
	anchorPrefix = "anchor"
)

// Backend is the durable half of a Store. Implementations must be safe for
// concurrent use and return common.StoreErr with KeyNotFound for missing
// records so the store can distinguish absence from outage.
type Backend interface {
	SetBlock(*Block) error
	GetBlock(slot int) (*Block, error)
	GetBlocks(fromSlot, toSlot int) ([]*Block, error)
	GetLatestBlock() (*Block, error)

	SetAnchor(*Anchor) error
	GetAnchor(slot int) (*Anchor, error)
	// GetFailedAnchors returns anchors with status failed, oldest first,
	// at most limit of them. A limit <= 0 means no bound.
	GetFailedAnchors(limit int) ([]*Anchor, error)

	Close() error
}

func blockKey(slot int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", blockPrefix, slot))
}

func anchorKey(slot int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", anchorPrefix, slot))
}
