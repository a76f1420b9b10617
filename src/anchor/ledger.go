// Package anchor periodically records finalized block roots on an external
// settlement ledger, and retries failed submissions with Fibonacci backoff.
package anchor

import (
	"context"
	"fmt"
	"sync"

	"github.com/agoranet/agora/src/crypto"
)

// Ledger submits anchor transactions to an external settlement chain.
type Ledger interface {
	// SubmitAnchor records a block's merkle root on the ledger and returns
	// the transaction signature.
	SubmitAnchor(ctx context.Context, slot int, merkleRoot, blockHash string) (string, error)
}

// Submission is a record of an anchor accepted by the InmemLedger.
type Submission struct {
	Slot       int
	MerkleRoot string
	BlockHash  string
	Signature  string
}

// InmemLedger is a deterministic in-process Ledger. Tests script failures
// with FailNext.
type InmemLedger struct {
	sync.Mutex

	submissions []Submission

	failures int
	err      error
}

// NewInmemLedger creates an empty ledger that accepts every submission.
func NewInmemLedger() *InmemLedger {
	return &InmemLedger{}
}

// FailNext makes the next n submissions fail with the given error.
func (l *InmemLedger) FailNext(n int, err error) {
	l.Lock()
	l.failures = n
	l.err = err
	l.Unlock()
}

// SubmitAnchor implements the Ledger interface. Signatures are derived from
// the submission content, so resubmitting the same anchor yields the same
// signature.
func (l *InmemLedger) SubmitAnchor(ctx context.Context, slot int, merkleRoot, blockHash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.Lock()
	defer l.Unlock()

	if l.failures > 0 {
		l.failures--
		return "", l.err
	}

	digest := crypto.SHA256([]byte(fmt.Sprintf("%d:%s:%s", slot, merkleRoot, blockHash)))
	sig := fmt.Sprintf("sig_%x", digest[:8])

	l.submissions = append(l.submissions, Submission{
		Slot:       slot,
		MerkleRoot: merkleRoot,
		BlockHash:  blockHash,
		Signature:  sig,
	})

	return sig, nil
}

// Submissions returns a copy of the accepted submissions in order.
func (l *InmemLedger) Submissions() []Submission {
	l.Lock()
	defer l.Unlock()
	res := make([]Submission, len(l.submissions))
	copy(res, l.submissions)
	return res
}
