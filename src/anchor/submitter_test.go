package anchor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agoranet/agora/src/common"
)

func TestSubmitterRoundTrip(t *testing.T) {
	backing := NewInmemLedger()

	daemon, err := NewSubmitter("127.0.0.1:0", backing, common.NewTestEntry(t))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer daemon.Shutdown()

	client := NewRPCLedger(daemon.Addr(), time.Second, common.NewTestEntry(t))

	sig, err := client.SubmitAnchor(context.Background(), 600, "root600", "hash600")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	subs := backing.Submissions()
	if len(subs) != 1 {
		t.Fatalf("daemon should have recorded 1 submission, not %d", len(subs))
	}

	if subs[0].Slot != 600 ||
		subs[0].MerkleRoot != "root600" ||
		subs[0].BlockHash != "hash600" {
		t.Fatalf("bad submission: %+v", subs[0])
	}

	if subs[0].Signature != sig {
		t.Fatalf("signature mismatch: %s != %s", subs[0].Signature, sig)
	}

	//the backing ledger signs deterministically, so resubmitting the same
	//anchor yields the same signature
	sig2, err := client.SubmitAnchor(context.Background(), 600, "root600", "hash600")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if sig2 != sig {
		t.Fatalf("resubmission signature mismatch: %s != %s", sig2, sig)
	}
}

func TestSubmitterError(t *testing.T) {
	backing := NewInmemLedger()

	daemon, err := NewSubmitter("127.0.0.1:0", backing, common.NewTestEntry(t))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer daemon.Shutdown()

	client := NewRPCLedger(daemon.Addr(), time.Second, common.NewTestEntry(t))

	backing.FailNext(1, errors.New("ledger unavailable"))

	if _, err := client.SubmitAnchor(context.Background(), 601, "root601", "hash601"); err == nil {
		t.Fatal("expected the daemon to relay the ledger error")
	}

	//the client drops its connection on error and redials on the next call
	if _, err := client.SubmitAnchor(context.Background(), 602, "root602", "hash602"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if l := len(backing.Submissions()); l != 1 {
		t.Fatalf("daemon should have recorded 1 submission, not %d", l)
	}
}
