package chain

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Anchor status values. StatusConfirmed is accepted at the API boundary and
// normalized to StatusAnchored in storage.
const (
	StatusPending   = "pending"
	StatusAnchored  = "anchored"
	StatusFailed    = "failed"
	StatusConfirmed = "confirmed"
)

// NormalizeStatus maps boundary status values onto stored ones.
func NormalizeStatus(status string) string {
	if status == StatusConfirmed {
		return StatusAnchored
	}
	return status
}

// Anchor records the external-ledger anchoring state of one slot. Exactly
// one anchor exists per slot; writes are upserts that merge with the
// existing record.
type Anchor struct {
	Slot        int    `json:"slot"`
	TxSignature string `json:"txSignature"`
	Status      string `json:"status"`
	MerkleRoot  string `json:"merkleRoot"`
	Cluster     string `json:"cluster"`
	RetryCount  int    `json:"retryCount"`
	CreatedAt   int64  `json:"createdAt"`

	// AnchoredAt is set exactly once, when the record transitions into
	// StatusAnchored. Zero means not yet anchored.
	AnchoredAt int64 `json:"anchoredAt"`
}

// NewAnchor creates a pending anchor for a slot.
func NewAnchor(slot int, merkleRoot, cluster string) *Anchor {
	return &Anchor{
		Slot:       slot,
		Status:     StatusPending,
		MerkleRoot: merkleRoot,
		Cluster:    cluster,
		CreatedAt:  time.Now().UnixMilli(),
	}
}

// Marshal ...
func (a *Anchor) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(a); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (a *Anchor) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(a); err != nil {
		return err
	}

	return nil
}

// merge folds an incoming anchor into an existing record, honoring the
// upsert rules: the incoming status (normalized) wins; txSignature,
// merkleRoot, and cluster are only overwritten by non-empty values, so a
// known signature is never erased by an empty one; anchoredAt is stamped
// only on the transition into anchored.
func merge(existing, incoming *Anchor) *Anchor {
	merged := &Anchor{
		Slot:        incoming.Slot,
		Status:      NormalizeStatus(incoming.Status),
		TxSignature: incoming.TxSignature,
		MerkleRoot:  incoming.MerkleRoot,
		Cluster:     incoming.Cluster,
		RetryCount:  incoming.RetryCount,
		CreatedAt:   incoming.CreatedAt,
		AnchoredAt:  incoming.AnchoredAt,
	}

	if merged.CreatedAt == 0 {
		merged.CreatedAt = time.Now().UnixMilli()
	}

	if existing != nil {
		if merged.TxSignature == "" {
			merged.TxSignature = existing.TxSignature
		}
		if merged.MerkleRoot == "" {
			merged.MerkleRoot = existing.MerkleRoot
		}
		if merged.Cluster == "" {
			merged.Cluster = existing.Cluster
		}

		merged.CreatedAt = existing.CreatedAt
		merged.AnchoredAt = existing.AnchoredAt
	}

	alreadyAnchored := existing != nil && existing.Status == StatusAnchored
	if merged.Status == StatusAnchored && !alreadyAnchored {
		merged.AnchoredAt = time.Now().UnixMilli()
	}

	return merged
}

// FailedAnchor is a failed anchor joined with its block's hash; it is the
// retry sweep's unit of work.
type FailedAnchor struct {
	Anchor    *Anchor `json:"anchor"`
	BlockHash string  `json:"blockHash"`
}
