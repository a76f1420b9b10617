package anchor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/event"
	"github.com/sirupsen/logrus"
)

// FibonacciDelays is the retry backoff schedule. The Nth retry waits the Nth
// entry; retries beyond the schedule reuse the last entry.
var FibonacciDelays = []time.Duration{
	8 * time.Second,
	13 * time.Second,
	21 * time.Second,
	34 * time.Second,
	55 * time.Second,
}

// RetryDelay returns the backoff before the given retry. The first retry is
// 1; out-of-range values are clamped to the schedule.
func RetryDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > len(FibonacciDelays) {
		retry = len(FibonacciDelays)
	}
	return FibonacciDelays[retry-1]
}

// FailedAnchorEvent is the payload of anchor:failed events.
type FailedAnchorEvent struct {
	Slot  int
	Error string
}

// Pipeline drives anchors through the ledger. A successful submission is
// stored as anchored with its transaction signature; a failed one is stored
// as failed with the retry count bumped, and picked up again by the periodic
// retry sweep once its backoff has elapsed. Retry counts ride on the stored
// anchor record, so backoff position survives a restart.
type Pipeline struct {
	sync.Mutex

	ledger Ledger
	store  *chain.Store
	bus    *event.Bus

	cluster string

	retryInterval time.Duration
	retryBatch    int

	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped bool

	anchorsSubmitted int
	anchorsFailed    int

	logger *logrus.Entry
}

// NewPipeline creates a stopped pipeline. The retry sweep runs every
// retryInterval once Start is called; zero values fall back to the last
// Fibonacci delay and a batch of 10.
func NewPipeline(
	ledger Ledger,
	store *chain.Store,
	bus *event.Bus,
	cluster string,
	retryInterval time.Duration,
	retryBatch int,
	logger *logrus.Entry,
) *Pipeline {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if retryInterval <= 0 {
		retryInterval = FibonacciDelays[len(FibonacciDelays)-1]
	}

	if retryBatch <= 0 {
		retryBatch = 10
	}

	return &Pipeline{
		ledger:        ledger,
		store:         store,
		bus:           bus,
		cluster:       cluster,
		retryInterval: retryInterval,
		retryBatch:    retryBatch,
		stopCh:        make(chan struct{}),
		logger:        logger.WithField("component", "anchor"),
	}
}

// Start launches the periodic retry sweep. Calling Start on a cleaned-up
// pipeline is a no-op.
func (p *Pipeline) Start() {
	p.Lock()
	defer p.Unlock()

	if p.stopped || p.ticker != nil {
		return
	}

	p.ticker = time.NewTicker(p.retryInterval)

	go p.retryLoop(p.ticker)
}

func (p *Pipeline) retryLoop(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			p.RetryFailedAnchors(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// Cleanup stops the retry sweep and releases the timer. It is idempotent
// and safe to call on a pipeline that was never started.
func (p *Pipeline) Cleanup() {
	p.Lock()
	defer p.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true

	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}

	close(p.stopCh)
}

func (p *Pipeline) isStopped() bool {
	p.Lock()
	defer p.Unlock()
	return p.stopped
}

// AnchorBlock submits a block's merkle root to the ledger. prevRetries is
// the number of retries already spent on this slot; it is bumped and
// persisted when the submission fails.
func (p *Pipeline) AnchorBlock(ctx context.Context, block *chain.Block, prevRetries int) error {
	if block == nil {
		return fmt.Errorf("anchor: nil block")
	}

	return p.submit(ctx, block.Slot(), block.MerkleRoot(), block.Hex(), prevRetries)
}

func (p *Pipeline) submit(ctx context.Context, slot int, merkleRoot, blockHash string, prevRetries int) error {
	sig, err := p.ledger.SubmitAnchor(ctx, slot, merkleRoot, blockHash)
	if err != nil {
		p.recordFailure(slot, merkleRoot, prevRetries, err)
		return err
	}

	anchor := chain.NewAnchor(slot, merkleRoot, p.cluster)
	anchor.TxSignature = sig
	anchor.Status = chain.StatusAnchored
	anchor.RetryCount = prevRetries

	p.store.StoreAnchor(anchor)

	p.Lock()
	p.anchorsSubmitted++
	p.Unlock()

	p.logger.WithFields(logrus.Fields{
		"slot":      slot,
		"signature": sig,
	}).Debug("Anchor submitted")

	return nil
}

func (p *Pipeline) recordFailure(slot int, merkleRoot string, prevRetries int, cause error) {
	anchor := chain.NewAnchor(slot, merkleRoot, p.cluster)
	anchor.Status = chain.StatusFailed
	anchor.RetryCount = prevRetries + 1

	p.store.StoreAnchor(anchor)

	p.Lock()
	p.anchorsFailed++
	p.Unlock()

	p.logger.WithFields(logrus.Fields{
		"slot":        slot,
		"retry_count": anchor.RetryCount,
		"retry_in":    RetryDelay(anchor.RetryCount),
	}).WithError(cause).Warn("Anchor submission failed")

	if p.bus != nil {
		p.bus.Publish(event.AnchorFailed, FailedAnchorEvent{
			Slot:  slot,
			Error: cause.Error(),
		})
	}
}

// RetryFailedAnchors resubmits failed anchors whose backoff has elapsed,
// oldest first. It returns the number of anchors that made it onto the
// ledger. The periodic sweep calls this on every tick; tests and operators
// can force a sweep directly.
func (p *Pipeline) RetryFailedAnchors(ctx context.Context) int {
	if p.isStopped() {
		return 0
	}

	failed := p.store.GetFailedAnchors(p.retryBatch)
	if len(failed) == 0 {
		return 0
	}

	now := time.Now().UnixMilli()
	resubmitted := 0

	for _, fa := range failed {
		if ctx.Err() != nil || p.isStopped() {
			break
		}

		if eligible := fa.Anchor.CreatedAt + RetryDelay(fa.Anchor.RetryCount).Milliseconds(); eligible > now {
			continue
		}

		p.logger.WithFields(logrus.Fields{
			"slot":        fa.Anchor.Slot,
			"retry_count": fa.Anchor.RetryCount,
		}).Debug("Retrying anchor")

		if err := p.submit(ctx, fa.Anchor.Slot, fa.Anchor.MerkleRoot, fa.BlockHash, fa.Anchor.RetryCount); err == nil {
			resubmitted++
		}
	}

	return resubmitted
}

// Stats returns pipeline counters for stats reporting.
func (p *Pipeline) Stats() map[string]int {
	p.Lock()
	defer p.Unlock()
	return map[string]int{
		"anchors_submitted": p.anchorsSubmitted,
		"anchors_failed":    p.anchorsFailed,
	}
}
