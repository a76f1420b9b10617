// Package agora assembles the node and its collaborators from a single
// configuration object. It is the entry point for running Agora as a
// standalone process or embedding it in another application.
package agora

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agoranet/agora/src/anchor"
	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/channel"
	"github.com/agoranet/agora/src/config"
	"github.com/agoranet/agora/src/consensus"
	"github.com/agoranet/agora/src/crypto/keys"
	"github.com/agoranet/agora/src/discovery"
	"github.com/agoranet/agora/src/event"
	"github.com/agoranet/agora/src/net"
	"github.com/agoranet/agora/src/node"
	"github.com/agoranet/agora/src/peers"
	"github.com/agoranet/agora/src/service"
	"github.com/sirupsen/logrus"
)

// Agora is a validating node, its collaborators, and the optional HTTP API
// service, assembled from a config object.
type Agora struct {
	Config    *config.Config
	Validator *node.Validator
	Node      *node.Node
	Transport net.Transport
	Store     *chain.Store
	Peers     *peers.Peers
	Bus       *event.Bus
	Service   *service.Service

	// Seeds are additional peer addresses handed to discovery, on top of the
	// addresses found in peers.json. Set it before calling Init.
	Seeds []string
}

// NewAgora instantiates an engine from a config object. Call Init before
// Run.
func NewAgora(config *config.Config) *Agora {
	engine := &Agora{
		Config: config,
		Bus:    event.NewBus(),
	}

	return engine
}

func (a *Agora) initKey() error {
	if a.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(a.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()

		if err != nil {
			a.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = Keygen(a.Config.Keyfile())

			if err != nil {
				a.Config.Logger().Error("Cannot generate a new private key", err)

				return err
			}

			a.Config.Logger().Info("Created a new key: ", keys.PublicKeyHex(&privKey.PublicKey))
		}

		a.Config.Key = privKey
	}

	a.Validator = node.NewValidator(a.Config.Key, a.Config.Moniker)

	return nil
}

func (a *Agora) initPeers() error {
	if a.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeers(a.Config.DataDir)

	participants, err := peerStore.Peers()

	if err != nil {
		if os.IsNotExist(err) {
			a.Config.Logger().Debug("No peers.json, starting from an empty peer set")

			a.Peers = peers.NewPeers()

			return nil
		}

		return err
	}

	if participants == nil {
		participants = peers.NewPeers()
	}

	a.Peers = participants

	return nil
}

func (a *Agora) initStore() error {
	var backend chain.Backend

	if !a.Config.Store {
		a.Config.Logger().Debug("created new in-mem store")
	} else {
		a.Config.Logger().WithField("path", a.Config.DatabaseDir).Debug("Attempting to load or create database")

		var err error

		switch a.Config.DBBackend {
		case config.LevelDB:
			backend, err = chain.NewLevelBackend(a.Config.DatabaseDir)
		case config.BadgerDB:
			backend, err = chain.NewBadgerBackend(a.Config.DatabaseDir)
		default:
			err = fmt.Errorf("unknown db backend %s", a.Config.DBBackend)
		}

		if err != nil {
			return err
		}
	}

	a.Store = chain.NewStore(backend, a.Bus, a.Config.Logger())

	return nil
}

func (a *Agora) initTransport() error {
	transport, err := net.NewTCPTransport(
		a.Validator.PublicKeyHex(),
		a.Config.BindAddr,
		a.Config.AdvertiseAddr,
		a.Config.TCPTimeout,
		a.Config.Logger(),
	)

	if err != nil {
		return err
	}

	a.Transport = transport

	return nil
}

func (a *Agora) initNode() error {
	nodeConf := node.NewConfig(
		a.Config.HeartbeatInterval,
		a.Config.SyncCheckInterval,
		a.Config.ValidatorRefreshInterval,
		a.Config.MetricsInterval,
		a.Config.MinPeers,
		a.Config.EScore,
		a.Config.Cluster,
		a.Config.Logger().Logger,
	)

	engine := consensus.NewInmemConsensus(a.Config.Logger())

	// Validators from peers.json are known before the first gossip round.
	for _, p := range a.Peers.ToPeerSlice() {
		engine.RegisterValidator(p)
	}

	a.Config.Logger().WithFields(logrus.Fields{
		"participants": a.Peers.Len(),
		"id":           a.Validator.ID(),
	}).Debug("PARTICIPANTS")

	channels := channel.NewManager(a.Validator.PublicKeyHex(), a.Config.Logger())

	disco := discovery.NewStaticDiscovery(a.seedAddrs(), a.Config.Logger())

	var ledger anchor.Ledger

	if a.Config.SubmitterAddr != "" {
		ledger = anchor.NewRPCLedger(a.Config.SubmitterAddr, a.Config.TCPTimeout, a.Config.Logger())
	} else {
		a.Config.Logger().Debug("No submitter address, anchoring against an in-mem ledger")

		ledger = anchor.NewInmemLedger()
	}

	pipeline := anchor.NewPipeline(
		ledger,
		a.Store,
		a.Bus,
		a.Config.Cluster,
		a.Config.AnchorRetryInterval,
		a.Config.AnchorRetryBatch,
		a.Config.Logger(),
	)

	a.Node = node.NewNode(
		nodeConf,
		a.Validator,
		a.Transport,
		engine,
		disco,
		channels,
		a.Store,
		pipeline,
		a.Bus,
	)

	return nil
}

func (a *Agora) initService() error {
	if a.Config.NoService {
		return nil
	}

	a.Service = service.NewService(a.Config.ServiceAddr, a.Node, a.Config.Logger())

	return nil
}

// seedAddrs merges the explicit seeds with the peer addresses found in
// peers.json.
func (a *Agora) seedAddrs() []string {
	seeds := []string{}

	seeds = append(seeds, a.Seeds...)

	for _, p := range a.Peers.ToPeerSlice() {
		if p.NetAddr != "" {
			seeds = append(seeds, p.NetAddr)
		}
	}

	return seeds
}

// Init instantiates the engine's components in dependency order.
func (a *Agora) Init() error {
	if err := a.initKey(); err != nil {
		return err
	}

	if err := a.initPeers(); err != nil {
		return err
	}

	if err := a.initStore(); err != nil {
		return err
	}

	if err := a.initTransport(); err != nil {
		return err
	}

	if err := a.initNode(); err != nil {
		return err
	}

	if err := a.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the HTTP service and the node, then blocks until an interrupt
// or termination signal arrives, at which point the node is stopped.
func (a *Agora) Run() error {
	if a.Service != nil && a.Config.ServiceAddr != "" {
		go a.Service.Serve()
	}

	if err := a.Node.Start(); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh

	a.Node.Stop()

	return nil
}

// Keygen generates a new key pair and saves it under keyfile. It refuses to
// overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()

	if err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
