package peers

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/agoranet/agora/src/crypto/keys"
)

func newTestPeer(t *testing.T, index int) *Peer {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	return NewPeer(
		keys.PublicKeyHex(&key.PublicKey),
		fmt.Sprintf("127.0.0.1:%d", 1337+index),
		fmt.Sprintf("peer%d", index),
	)
}

func TestPeerID(t *testing.T) {
	peer := newTestPeer(t, 0)

	if peer.ID == 0 {
		t.Fatalf("peer ID should be computed from the public key")
	}

	if peer.EScore != DefaultEScore {
		t.Fatalf("new peer eScore should be %f, not %f", DefaultEScore, peer.EScore)
	}
}

func TestSetEScoreClamps(t *testing.T) {
	peer := newTestPeer(t, 0)

	peer.SetEScore(150)
	if peer.EScore != 100 {
		t.Fatalf("eScore should clamp to 100, not %f", peer.EScore)
	}

	peer.SetEScore(-10)
	if peer.EScore != 0 {
		t.Fatalf("eScore should clamp to 0, not %f", peer.EScore)
	}
}

func TestPeersCollection(t *testing.T) {
	peers := NewPeers()

	first := newTestPeer(t, 0)
	second := newTestPeer(t, 1)

	peers.AddPeer(first)
	peers.AddPeer(second)

	if peers.Len() != 2 {
		t.Fatalf("peers should contain 2 peers, not %d", peers.Len())
	}

	if got, ok := peers.GetByPubKey(first.PubKeyHex); !ok || got.NetAddr != first.NetAddr {
		t.Fatalf("GetByPubKey should find the first peer")
	}

	if !peers.UpdateEScore(second.PubKeyHex, 90) {
		t.Fatalf("UpdateEScore should find the second peer")
	}

	if got, _ := peers.GetByPubKey(second.PubKeyHex); got.EScore != 90 {
		t.Fatalf("second peer eScore should be 90, not %f", got.EScore)
	}

	if peers.UpdateEScore("0Xdeadbeef", 10) {
		t.Fatalf("UpdateEScore should report unknown peers")
	}

	wantTotal := DefaultEScore + 90
	if total := peers.TotalEScore(); total != wantTotal {
		t.Fatalf("TotalEScore should be %f, not %f", wantTotal, total)
	}

	peers.RemovePeerByPubKey(first.PubKeyHex)

	if peers.Len() != 1 {
		t.Fatalf("peers should contain 1 peer after removal, not %d", peers.Len())
	}
}

func TestExcludePeer(t *testing.T) {
	slice := []*Peer{
		newTestPeer(t, 0),
		newTestPeer(t, 1),
		newTestPeer(t, 2),
	}

	index, others := ExcludePeer(slice, slice[1].PubKeyHex)

	if index != 1 {
		t.Fatalf("excluded index should be 1, not %d", index)
	}

	if len(others) != 2 {
		t.Fatalf("2 peers should remain, not %d", len(others))
	}

	for _, p := range others {
		if p.PubKeyHex == slice[1].PubKeyHex {
			t.Fatalf("excluded peer still present")
		}
	}
}

func TestJSONPeers(t *testing.T) {
	// Create a test dir
	dir, err := ioutil.TempDir("", "agora")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	// Create the store
	store := NewJSONPeers(dir)

	// Try a read, should get nothing
	peers, err := store.Peers()
	if err == nil {
		t.Fatalf("store.Peers() should generate an error")
	}
	if peers != nil {
		t.Fatalf("peers: %v", peers)
	}

	newPeers := NewPeers()
	for i := 0; i < 3; i++ {
		newPeers.AddPeer(newTestPeer(t, i))
	}

	newPeersSlice := newPeers.ToPeerSlice()

	if err := store.SetPeers(newPeersSlice); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should find 3 peers
	peers, err = store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peers.Len() != 3 {
		t.Fatalf("peers: %v", peers)
	}

	peersSlice := peers.ToPeerSlice()

	for i := 0; i < 3; i++ {
		if peersSlice[i].NetAddr != newPeersSlice[i].NetAddr {
			t.Fatalf("peers[%d] NetAddr should be %s, not %s", i,
				newPeersSlice[i].NetAddr, peersSlice[i].NetAddr)
		}
		if peersSlice[i].PubKeyHex != newPeersSlice[i].PubKeyHex {
			t.Fatalf("peers[%d] PubKeyHex should be %s, not %s", i,
				newPeersSlice[i].PubKeyHex, peersSlice[i].PubKeyHex)
		}
	}
}
