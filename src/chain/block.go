// Package chain defines the finalized-block and anchor-record types and the
// two-tier store that persists them. The store writes through a durable
// key-value backend and falls back to in-memory maps when the backend is
// unavailable, so a storage outage degrades the node instead of stopping it.
package chain

import (
	"bytes"
	"time"

	"github.com/agoranet/agora/src/common"
	"github.com/agoranet/agora/src/crypto"
	"github.com/ugorji/go/codec"
)

// Judgment is an opaque record carried by a block. The chain does not
// interpret judgments; it only preserves their order and count.
type Judgment map[string]interface{}

// BlockBody groups the hashed content of a block.
type BlockBody struct {
	Slot          int        `json:"slot"`
	Proposer      string     `json:"proposer"`
	MerkleRoot    string     `json:"merkleRoot"`
	Judgments     []Judgment `json:"judgments"`
	JudgmentCount int        `json:"judgmentCount"`
	ParentHash    string     `json:"parentHash"`
	Timestamp     int64      `json:"timestamp"`
}

// Marshal - canonical json encoding of the body only
func (bb *BlockBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(bb); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (bb *BlockBody) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(bb); err != nil {
		return err
	}

	return nil
}

// Hash ...
func (bb *BlockBody) Hash() ([]byte, error) {
	hashBytes, err := bb.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

// Block is a finalized block. A block is created by consensus on
// finalization, persisted exactly once per slot, and immutable thereafter.
// Its hash is deterministic over the body's canonical encoding.
type Block struct {
	Body BlockBody

	hash []byte
	hex  string
}

// NewBlock assembles a block for the given slot. JudgmentCount is fixed at
// construction and the timestamp is taken from the wall clock.
func NewBlock(slot int, proposer, merkleRoot, parentHash string, judgments []Judgment) *Block {
	if judgments == nil {
		judgments = []Judgment{}
	}

	body := BlockBody{
		Slot:          slot,
		Proposer:      proposer,
		MerkleRoot:    merkleRoot,
		Judgments:     judgments,
		JudgmentCount: len(judgments),
		ParentHash:    parentHash,
		Timestamp:     time.Now().UnixMilli(),
	}

	return &Block{
		Body: body,
	}
}

// Slot ...
func (b *Block) Slot() int {
	return b.Body.Slot
}

// Proposer ...
func (b *Block) Proposer() string {
	return b.Body.Proposer
}

// MerkleRoot ...
func (b *Block) MerkleRoot() string {
	return b.Body.MerkleRoot
}

// Judgments ...
func (b *Block) Judgments() []Judgment {
	return b.Body.Judgments
}

// JudgmentCount ...
func (b *Block) JudgmentCount() int {
	return b.Body.JudgmentCount
}

// ParentHash ...
func (b *Block) ParentHash() string {
	return b.Body.ParentHash
}

// Timestamp ...
func (b *Block) Timestamp() int64 {
	return b.Body.Timestamp
}

// Marshal ...
func (b *Block) Marshal() ([]byte, error) {
	bf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(bf, jh)

	if err := enc.Encode(b.Body); err != nil {
		return nil, err
	}

	return bf.Bytes(), nil
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	bf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bf, jh)

	if err := dec.Decode(&b.Body); err != nil {
		return err
	}

	b.hash = nil
	b.hex = ""

	return nil
}

// Hash ...
func (b *Block) Hash() ([]byte, error) {
	if len(b.hash) == 0 {
		hashBytes, err := b.Body.Hash()
		if err != nil {
			return nil, err
		}
		b.hash = hashBytes
	}
	return b.hash, nil
}

// Hex ...
func (b *Block) Hex() string {
	if b.hex == "" {
		hash, _ := b.Hash()
		b.hex = common.EncodeToString(hash)
	}
	return b.hex
}
