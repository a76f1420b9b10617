package chain

import (
	"testing"
)

func TestBlockHashDeterministic(t *testing.T) {
	judgments := []Judgment{
		{"verdict": "accept", "subject": "claim-1"},
	}

	block := NewBlock(42, "proposer-key", "root-abc", "parent-hash", judgments)

	first, err := block.Hash()
	if err != nil {
		t.Fatal(err)
	}

	// rebuild an identical block from the marshalled form
	raw, err := block.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	clone := new(Block)
	if err := clone.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	second, err := clone.Hash()
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Fatalf("hash should be deterministic over block content")
	}

	if block.Hex() != clone.Hex() {
		t.Fatalf("hex should match: %s != %s", block.Hex(), clone.Hex())
	}
}

func TestBlockHashChangesWithContent(t *testing.T) {
	a := NewBlock(1, "proposer", "root", "", nil)

	b := NewBlock(1, "proposer", "root", "", nil)
	b.Body.Timestamp = a.Body.Timestamp
	b.Body.MerkleRoot = "other-root"

	if a.Hex() == b.Hex() {
		t.Fatalf("different content should not hash identically")
	}
}

func TestBlockJudgmentCount(t *testing.T) {
	judgments := []Judgment{
		{"verdict": "accept"},
		{"verdict": "reject"},
	}

	block := NewBlock(7, "proposer", "", "", judgments)

	if block.JudgmentCount() != 2 {
		t.Fatalf("judgment count should be 2, not %d", block.JudgmentCount())
	}

	empty := NewBlock(8, "proposer", "", "", nil)

	if empty.JudgmentCount() != 0 {
		t.Fatalf("judgment count should be 0, not %d", empty.JudgmentCount())
	}

	if empty.Judgments() == nil {
		t.Fatalf("judgments should never be nil")
	}
}

func TestBlockMarshalRoundTrip(t *testing.T) {
	block := NewBlock(9, "proposer-key", "merkle-root", "parent", []Judgment{
		{"subject": "claim-9", "weight": "3"},
	})

	raw, err := block.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := new(Block)
	if err := decoded.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	if decoded.Slot() != 9 {
		t.Fatalf("slot should survive the round trip, got %d", decoded.Slot())
	}
	if decoded.Proposer() != "proposer-key" {
		t.Fatalf("proposer should survive the round trip, got %s", decoded.Proposer())
	}
	if decoded.MerkleRoot() != "merkle-root" {
		t.Fatalf("merkleRoot should survive the round trip, got %s", decoded.MerkleRoot())
	}
	if decoded.ParentHash() != "parent" {
		t.Fatalf("parentHash should survive the round trip, got %s", decoded.ParentHash())
	}
	if decoded.JudgmentCount() != 1 {
		t.Fatalf("judgmentCount should survive the round trip, got %d", decoded.JudgmentCount())
	}
	if decoded.Timestamp() != block.Timestamp() {
		t.Fatalf("timestamp should survive the round trip")
	}
}

func TestNormalizeStatus(t *testing.T) {
	if NormalizeStatus(StatusConfirmed) != StatusAnchored {
		t.Fatalf("confirmed should normalize to anchored")
	}

	for _, status := range []string{StatusPending, StatusAnchored, StatusFailed} {
		if NormalizeStatus(status) != status {
			t.Fatalf("%s should pass through normalization", status)
		}
	}
}
