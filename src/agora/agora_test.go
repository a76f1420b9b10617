package agora

import (
	"fmt"
	"os"
	"testing"

	"github.com/agoranet/agora/src/config"
	"github.com/agoranet/agora/src/crypto/keys"
	"github.com/agoranet/agora/src/peers"
)

func testConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t)
	conf.SetDataDir("test_data")
	conf.BindAddr = "127.0.0.1:0"
	conf.NoService = true
	return conf
}

func TestInitKey(t *testing.T) {
	os.RemoveAll("test_data")
	os.Mkdir("test_data", os.ModeDir|0777)
	defer os.RemoveAll("test_data")

	conf := testConfig(t)

	engine := NewAgora(conf)

	if err := engine.initKey(); err != nil {
		t.Fatalf("err: %v", err)
	}

	pub := engine.Validator.PublicKeyHex()

	//a second engine on the same datadir picks up the same key
	engine2 := NewAgora(testConfig(t))

	if err := engine2.initKey(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if engine2.Validator.PublicKeyHex() != pub {
		t.Fatalf("expected the second engine to reuse the key from %s", conf.Keyfile())
	}

	//Keygen refuses to overwrite an existing keyfile
	if _, err := Keygen(conf.Keyfile()); err == nil {
		t.Fatal("Keygen should refuse to overwrite an existing keyfile")
	}
}

func TestInitPeers(t *testing.T) {
	os.RemoveAll("test_data")
	os.Mkdir("test_data", os.ModeDir|0777)
	defer os.RemoveAll("test_data")

	jsonPeers := peers.NewJSONPeers("test_data")

	peerSlice := []*peers.Peer{}
	for i := 0; i < 3; i++ {
		key, _ := keys.GenerateECDSAKey()
		peerSlice = append(peerSlice, peers.NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("127.0.0.1:%d", 1337+i),
			fmt.Sprintf("peer%d", i),
		))
	}

	if err := jsonPeers.SetPeers(peerSlice); err != nil {
		t.Fatalf("err: %v", err)
	}

	engine := NewAgora(testConfig(t))

	if err := engine.initPeers(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if l := engine.Peers.Len(); l != 3 {
		t.Fatalf("engine should have 3 peers, not %d", l)
	}

	if l := len(engine.seedAddrs()); l != 3 {
		t.Fatalf("seedAddrs should contain 3 addresses, not %d", l)
	}

	//explicit seeds come on top of the peers.json addresses
	engine.Seeds = []string{"127.0.0.1:2000"}

	if l := len(engine.seedAddrs()); l != 4 {
		t.Fatalf("seedAddrs should contain 4 addresses, not %d", l)
	}
}

func TestInitPeersNoFile(t *testing.T) {
	os.RemoveAll("test_data")
	os.Mkdir("test_data", os.ModeDir|0777)
	defer os.RemoveAll("test_data")

	engine := NewAgora(testConfig(t))

	if err := engine.initPeers(); err != nil {
		t.Fatalf("err: %v", err)
	}

	//no peers.json is not an error, the node starts from an empty peer set
	if l := engine.Peers.Len(); l != 0 {
		t.Fatalf("engine should have 0 peers, not %d", l)
	}
}

func TestInitStore(t *testing.T) {
	os.RemoveAll("test_data")
	os.Mkdir("test_data", os.ModeDir|0777)
	defer os.RemoveAll("test_data")

	conf := testConfig(t)
	conf.Store = true

	engine := NewAgora(conf)

	if err := engine.initStore(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := os.Stat(conf.DatabaseDir); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := engine.Store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	//check that a second engine can reopen the same database
	conf2 := testConfig(t)
	conf2.Store = true

	engine2 := NewAgora(conf2)

	if err := engine2.initStore(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := engine2.Store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
}
