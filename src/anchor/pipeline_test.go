package anchor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/common"
	"github.com/agoranet/agora/src/event"
)

func newTestPipeline(t *testing.T, retryInterval time.Duration) (*Pipeline, *chain.Store, *InmemLedger, *event.Bus) {
	bus := event.NewBus()
	store := chain.NewStore(nil, bus, common.NewTestEntry(t))
	ledger := NewInmemLedger()

	pipeline := NewPipeline(ledger, store, bus, "devnet", retryInterval, 10, common.NewTestEntry(t))

	return pipeline, store, ledger, bus
}

// seedFailedAnchor stores a block and a failed anchor for it, backdated far
// enough that every retry backoff has elapsed.
func seedFailedAnchor(store *chain.Store, block *chain.Block, retryCount int) {
	store.StoreBlock(block)

	anchor := chain.NewAnchor(block.Slot(), block.MerkleRoot(), "devnet")
	anchor.Status = chain.StatusFailed
	anchor.RetryCount = retryCount
	anchor.CreatedAt = time.Now().UnixMilli() - (2 * time.Minute).Milliseconds()

	store.StoreAnchor(anchor)
}

func TestFibonacciDelays(t *testing.T) {
	if len(FibonacciDelays) != 5 {
		t.Fatalf("schedule length: %d, expected 5", len(FibonacciDelays))
	}

	if d := RetryDelay(1); d != 8*time.Second {
		t.Fatalf("first retry delay: %v, expected 8s", d)
	}

	if d := RetryDelay(3); d != 21*time.Second {
		t.Fatalf("third retry delay: %v, expected 21s", d)
	}

	// Out-of-range retries clamp to the schedule.
	if d := RetryDelay(0); d != 8*time.Second {
		t.Fatalf("clamped low delay: %v, expected 8s", d)
	}
	if d := RetryDelay(99); d != 55*time.Second {
		t.Fatalf("clamped high delay: %v, expected 55s", d)
	}
}

func TestAnchorBlockSuccess(t *testing.T) {
	pipeline, store, ledger, _ := newTestPipeline(t, 0)

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)

	if err := pipeline.AnchorBlock(context.Background(), block, 0); err != nil {
		t.Fatalf("err: %v", err)
	}

	anchor := store.GetAnchor(600)
	if anchor == nil {
		t.Fatal("anchor not stored")
	}
	if anchor.Status != chain.StatusAnchored {
		t.Fatalf("status: %s, expected %s", anchor.Status, chain.StatusAnchored)
	}
	if anchor.TxSignature == "" {
		t.Fatal("anchored record has no signature")
	}
	if anchor.RetryCount != 0 {
		t.Fatalf("retryCount: %d, expected 0", anchor.RetryCount)
	}
	if anchor.AnchoredAt == 0 {
		t.Fatal("anchoredAt not stamped")
	}

	subs := ledger.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions: %d, expected 1", len(subs))
	}
	if subs[0].Slot != 600 || subs[0].BlockHash != block.Hex() {
		t.Fatalf("submission: %+v", subs[0])
	}
	if subs[0].Signature != anchor.TxSignature {
		t.Fatalf("signature %s, stored %s", subs[0].Signature, anchor.TxSignature)
	}
}

func TestAnchorBlockFailure(t *testing.T) {
	pipeline, store, ledger, bus := newTestPipeline(t, 0)

	var failures []FailedAnchorEvent
	bus.Subscribe(event.AnchorFailed, func(payload interface{}) {
		failures = append(failures, payload.(FailedAnchorEvent))
	})

	ledger.FailNext(1, errors.New("rpc unavailable"))

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)

	if err := pipeline.AnchorBlock(context.Background(), block, 0); err == nil {
		t.Fatal("submission should have failed")
	}

	anchor := store.GetAnchor(600)
	if anchor == nil {
		t.Fatal("anchor not stored")
	}
	if anchor.Status != chain.StatusFailed {
		t.Fatalf("status: %s, expected %s", anchor.Status, chain.StatusFailed)
	}
	if anchor.RetryCount != 1 {
		t.Fatalf("retryCount: %d, expected 1", anchor.RetryCount)
	}
	if anchor.TxSignature != "" {
		t.Fatalf("failed record carries signature %s", anchor.TxSignature)
	}

	if len(failures) != 1 {
		t.Fatalf("anchor:failed events: %d, expected 1", len(failures))
	}
	if failures[0].Slot != 600 || failures[0].Error != "rpc unavailable" {
		t.Fatalf("event: %+v", failures[0])
	}

	if stats := pipeline.Stats(); stats["anchors_failed"] != 1 {
		t.Fatalf("stats: %v", stats)
	}
}

func TestRetryFailedAnchors(t *testing.T) {
	pipeline, store, ledger, _ := newTestPipeline(t, 0)

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)
	seedFailedAnchor(store, block, 1)

	// First sweep still fails; the retry count moves forward.
	ledger.FailNext(1, errors.New("rpc unavailable"))

	if n := pipeline.RetryFailedAnchors(context.Background()); n != 0 {
		t.Fatalf("resubmitted: %d, expected 0", n)
	}

	anchor := store.GetAnchor(600)
	if anchor.Status != chain.StatusFailed || anchor.RetryCount != 2 {
		t.Fatalf("after failed sweep: status %s retryCount %d", anchor.Status, anchor.RetryCount)
	}

	// Second sweep lands, carrying the accumulated retry count.
	if n := pipeline.RetryFailedAnchors(context.Background()); n != 1 {
		t.Fatalf("resubmitted: %d, expected 1", n)
	}

	anchor = store.GetAnchor(600)
	if anchor.Status != chain.StatusAnchored {
		t.Fatalf("status: %s, expected %s", anchor.Status, chain.StatusAnchored)
	}
	if anchor.RetryCount != 2 {
		t.Fatalf("retryCount: %d, expected 2", anchor.RetryCount)
	}
	if anchor.AnchoredAt == 0 {
		t.Fatal("anchoredAt not stamped")
	}

	subs := ledger.Submissions()
	if len(subs) != 1 || subs[0].BlockHash != block.Hex() {
		t.Fatalf("submissions: %+v", subs)
	}
}

func TestRetrySkipsFreshFailures(t *testing.T) {
	pipeline, store, ledger, _ := newTestPipeline(t, 0)

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)
	store.StoreBlock(block)

	// A failure recorded just now must wait out its backoff.
	ledger.FailNext(1, errors.New("rpc unavailable"))
	pipeline.AnchorBlock(context.Background(), block, 0)

	if n := pipeline.RetryFailedAnchors(context.Background()); n != 0 {
		t.Fatalf("resubmitted: %d, expected 0", n)
	}

	if anchor := store.GetAnchor(600); anchor.RetryCount != 1 {
		t.Fatalf("retryCount: %d, expected 1 (no early retry)", anchor.RetryCount)
	}

	if subs := ledger.Submissions(); len(subs) != 0 {
		t.Fatalf("submissions: %+v, expected none", subs)
	}
}

func TestCleanup(t *testing.T) {
	pipeline, store, _, _ := newTestPipeline(t, time.Hour)

	pipeline.Start()

	if pipeline.ticker == nil {
		t.Fatal("Start did not arm the timer")
	}

	pipeline.Cleanup()

	if pipeline.ticker != nil {
		t.Fatal("Cleanup did not clear the timer")
	}

	// Idempotent, and Start after Cleanup stays stopped.
	pipeline.Cleanup()
	pipeline.Start()

	if pipeline.ticker != nil {
		t.Fatal("Start should be a no-op after Cleanup")
	}

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)
	seedFailedAnchor(store, block, 1)

	if n := pipeline.RetryFailedAnchors(context.Background()); n != 0 {
		t.Fatalf("stopped pipeline resubmitted %d anchors", n)
	}
}

func TestRetrySweepLoop(t *testing.T) {
	pipeline, store, _, _ := newTestPipeline(t, 50*time.Millisecond)
	defer pipeline.Cleanup()

	block := chain.NewBlock(600, "proposer", "root600", "parent", nil)
	seedFailedAnchor(store, block, 1)

	pipeline.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if anchor := store.GetAnchor(600); anchor != nil && anchor.Status == chain.StatusAnchored {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("timeout waiting for the sweep to anchor the block")
}
