package consensus

import (
	"testing"

	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/common"
	"github.com/agoranet/agora/src/crypto/keys"
	"github.com/agoranet/agora/src/peers"
)

func newTestValidator(t *testing.T, moniker string, eScore float64) *peers.Peer {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	peer := peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), "127.0.0.1:0", moniker)
	peer.SetEScore(eScore)

	return peer
}

func testBlock(slot int) *chain.Block {
	return chain.NewBlock(slot, "proposer", "root", "parent", nil)
}

func TestConsensusStartStop(t *testing.T) {
	engine := NewInmemConsensus(common.NewTestEntry(t))

	started := false
	engine.OnStarted(func() { started = true })

	if _, err := engine.ProposeBlock(testBlock(1)); err != ErrNotStarted {
		t.Fatalf("err: %v, expected ErrNotStarted", err)
	}

	if err := engine.Start(75); err != nil {
		t.Fatalf("err: %v", err)
	}

	if !started {
		t.Fatal("OnStarted callback did not fire")
	}

	if err := engine.Start(75); err == nil {
		t.Fatal("starting twice should fail")
	}

	engine.Stop()

	if _, err := engine.ProposeBlock(testBlock(1)); err != ErrNotStarted {
		t.Fatalf("err: %v, expected ErrNotStarted", err)
	}
}

func TestConsensusPropose(t *testing.T) {
	engine := NewInmemConsensus(common.NewTestEntry(t))

	var confirmed, finalized *chain.Block
	engine.OnBlockConfirmed(func(b *chain.Block) { confirmed = b })
	engine.OnBlockFinalized(func(b *chain.Block) { finalized = b })

	if err := engine.Start(75); err != nil {
		t.Fatalf("err: %v", err)
	}

	block := testBlock(600)

	out, err := engine.ProposeBlock(block)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if out != block {
		t.Fatal("ProposeBlock should return the finalized block")
	}

	if confirmed != block || finalized != block {
		t.Fatal("confirmed and finalized callbacks should both fire")
	}

	if engine.CurrentSlot() != 600 {
		t.Fatalf("currentSlot: %d, expected 600", engine.CurrentSlot())
	}
	if engine.LastFinalizedSlot() != 600 {
		t.Fatalf("finalizedSlot: %d, expected 600", engine.LastFinalizedSlot())
	}

	// A finalized slot cannot be proposed again.
	if _, err := engine.ProposeBlock(testBlock(600)); err == nil {
		t.Fatal("reproposing a finalized slot should fail")
	}

	if _, err := engine.ProposeBlock(testBlock(700)); err != nil {
		t.Fatalf("err: %v", err)
	}
	if engine.LastFinalizedSlot() != 700 {
		t.Fatalf("finalizedSlot: %d, expected 700", engine.LastFinalizedSlot())
	}
}

func TestConsensusQuorum(t *testing.T) {
	engine := NewInmemConsensus(common.NewTestEntry(t))

	var confirmed, finalized int
	engine.OnBlockConfirmed(func(b *chain.Block) { confirmed++ })
	engine.OnBlockFinalized(func(b *chain.Block) { finalized++ })

	if err := engine.Start(75); err != nil {
		t.Fatalf("err: %v", err)
	}

	engine.RegisterValidator(newTestValidator(t, "node0", 80))
	engine.RegisterValidator(newTestValidator(t, "node1", 75))
	engine.RegisterValidator(newTestValidator(t, "node2", 90))

	if engine.ValidatorCount() != 3 {
		t.Fatalf("validators: %d, expected 3", engine.ValidatorCount())
	}

	// Total weight is 245; withholding 110 leaves 135/245 = 0.55, below the
	// quorum ratio.
	engine.SetDissent(110)

	if _, err := engine.ProposeBlock(testBlock(600)); err != ErrNoQuorum {
		t.Fatalf("err: %v, expected ErrNoQuorum", err)
	}

	if confirmed != 1 || finalized != 0 {
		t.Fatalf("confirmed %d finalized %d, expected 1 and 0", confirmed, finalized)
	}

	if engine.LastFinalizedSlot() != 0 {
		t.Fatalf("finalizedSlot: %d, expected 0", engine.LastFinalizedSlot())
	}

	// The slot was still observed.
	if engine.CurrentSlot() != 600 {
		t.Fatalf("currentSlot: %d, expected 600", engine.CurrentSlot())
	}

	engine.SetDissent(0)

	if _, err := engine.ProposeBlock(testBlock(600)); err != nil {
		t.Fatalf("err: %v", err)
	}

	if confirmed != 2 || finalized != 1 {
		t.Fatalf("confirmed %d finalized %d, expected 2 and 1", confirmed, finalized)
	}
}

func TestConsensusValidators(t *testing.T) {
	engine := NewInmemConsensus(common.NewTestEntry(t))

	v0 := newTestValidator(t, "node0", 80)
	v1 := newTestValidator(t, "node1", 75)

	engine.RegisterValidator(v0)
	engine.RegisterValidator(v1)
	engine.RegisterValidator(nil)

	if engine.ValidatorCount() != 2 {
		t.Fatalf("validators: %d, expected 2", engine.ValidatorCount())
	}

	if !engine.UpdateValidatorEScore(v0.PubKeyHex, 60) {
		t.Fatal("updating a registered validator should succeed")
	}
	if engine.UpdateValidatorEScore("0Xdeadbeef", 60) {
		t.Fatal("updating an unknown validator should fail")
	}

	engine.RemoveValidator(v1.PubKeyHex)

	if engine.ValidatorCount() != 1 {
		t.Fatalf("validators: %d, expected 1", engine.ValidatorCount())
	}
}
