package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agoranet/agora/src/anchor"
	"github.com/agoranet/agora/src/chain"
	"github.com/agoranet/agora/src/channel"
	"github.com/agoranet/agora/src/consensus"
	"github.com/agoranet/agora/src/discovery"
	"github.com/agoranet/agora/src/event"
	"github.com/agoranet/agora/src/net"
	"github.com/agoranet/agora/src/peers"
	"github.com/sirupsen/logrus"
)

// StartedEvent is the payload of node:started events.
type StartedEvent struct {
	NodeID string
	Port   int
	EScore float64
}

// StoppedEvent is the payload of node:stopped events.
type StoppedEvent struct {
	NodeID string
	Uptime time.Duration
	Stats  map[string]string
}

// FinalizedBlockEvent is the payload of block:finalized events.
type FinalizedBlockEvent struct {
	Slot  int
	Hash  string
	Block *chain.Block
}

//Node orchestrates the validating-node collaborators: transport, consensus
//engine, discovery, secure channels, block store and anchoring pipeline.
type Node struct {
	state

	conf *Config

	validator *Validator

	trans net.Transport
	netCh <-chan net.Message

	engine consensus.Consensus

	disco discovery.Discovery

	channels *channel.Manager

	store *chain.Store

	pipeline *anchor.Pipeline

	bus *event.Bus

	shutdownCh chan struct{}

	start time.Time

	needSync       bool
	consensusReady bool
	stopped        bool

	messagesHandled int
	errors          int

	onSecure func(peerID string, message interface{})

	controlLock sync.Mutex

	logger *logrus.Entry
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	validator *Validator,
	trans net.Transport,
	engine consensus.Consensus,
	disco discovery.Discovery,
	channels *channel.Manager,
	store *chain.Store,
	pipeline *anchor.Pipeline,
	bus *event.Bus,
) *Node {
	node := Node{
		conf:       conf,
		validator:  validator,
		trans:      trans,
		netCh:      trans.Consumer(),
		engine:     engine,
		disco:      disco,
		channels:   channels,
		store:      store,
		pipeline:   pipeline,
		bus:        bus,
		shutdownCh: make(chan struct{}),
		logger:     conf.Logger.WithField("this_id", validator.ID()),
	}

	return &node
}

// Start brings the node from Offline to Online, and to Participating once
// the consensus engine has begun its first round. Any collaborator failing
// to start leaves the node in the Errored state.
func (n *Node) Start() error {
	if n.getState() != Offline {
		return fmt.Errorf("node: already started (state %s)", n.getState())
	}

	n.setState(Bootstrapping)
	n.start = time.Now()

	n.logger.WithField("moniker", n.validator.Moniker).Debug("BOOTSTRAPPING")

	n.trans.OnConnect(n.handlePeerConnect)
	n.trans.OnDisconnect(n.handlePeerDisconnect)
	n.trans.OnError(n.handleTransportError)

	if err := n.trans.Listen(); err != nil {
		n.setState(Errored)
		return fmt.Errorf("node: starting transport: %v", err)
	}

	n.engine.OnStarted(n.handleConsensusStarted)
	n.engine.OnBlockFinalized(n.handleBlockFinalized)

	if err := n.engine.Start(n.conf.EScore); err != nil {
		n.setState(Errored)
		return fmt.Errorf("node: starting consensus: %v", err)
	}

	n.engine.RegisterValidator(n.selfPeer())

	n.disco.OnPeerDiscovered(n.handlePeerDiscovered)

	if err := n.disco.Start(); err != nil {
		n.setState(Errored)
		return fmt.Errorf("node: starting discovery: %v", err)
	}

	n.pipeline.Start()

	n.goFunc(n.doBackgroundWork)
	n.goFunc(func() { n.periodic(n.conf.HeartbeatInterval, n.sendHeartbeats) })
	n.goFunc(func() { n.periodic(n.conf.SyncCheckInterval, n.checkSync) })
	n.goFunc(func() { n.periodic(n.conf.ValidatorRefreshInterval, n.refreshValidators) })
	n.goFunc(func() { n.periodic(n.conf.MetricsInterval, n.reportMetrics) })

	n.setState(Online)

	// The consensus engine may have begun its round during the start
	// sequence, while the node was still Bootstrapping.
	n.controlLock.Lock()
	ready := n.consensusReady
	n.controlLock.Unlock()
	if ready {
		n.setState(Participating)
	}

	n.logger.WithFields(logrus.Fields{
		"addr":    n.trans.LocalAddr(),
		"e_score": n.conf.EScore,
		"state":   n.getState().String(),
	}).Debug("Node started")

	n.bus.Publish(event.NodeStarted, StartedEvent{
		NodeID: n.validator.PublicKeyHex(),
		Port:   advertisePort(n.trans.LocalAddr()),
		EScore: n.conf.EScore,
	})

	return nil
}

// Stop shuts the node down. It is idempotent.
func (n *Node) Stop() {
	n.controlLock.Lock()
	if n.stopped {
		n.controlLock.Unlock()
		return
	}
	n.stopped = true
	n.controlLock.Unlock()

	wasRunning := n.getState() != Offline

	n.logger.Debug("Stopping node")

	stats := n.GetStats()
	uptime := time.Since(n.start)

	close(n.shutdownCh)

	n.disco.Stop()
	n.engine.Stop()
	n.pipeline.Cleanup()

	n.waitRoutines()

	//transport and store should only be closed once all concurrent operations
	//are finished otherwise they will panic trying to use closed objects
	n.trans.Close()
	n.store.Close()

	n.setState(Offline)

	if wasRunning {
		n.bus.Publish(event.NodeStopped, StoppedEvent{
			NodeID: n.validator.PublicKeyHex(),
			Uptime: uptime,
			Stats:  stats,
		})
	}

	n.logger.WithField("uptime", uptime).Debug("Node stopped")
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case msg := <-n.netCh:
			n.handleMessage(msg)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) periodic(interval time.Duration, task func()) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task()
		case <-n.shutdownCh:
			return
		}
	}
}

// handleMessage routes one inbound wire message. Messages with unknown
// types are ignored; a handler error is counted and logged but never stops
// the consumer loop.
func (n *Node) handleMessage(msg net.Message) {
	n.controlLock.Lock()
	n.messagesHandled++
	n.controlLock.Unlock()

	n.logger.WithFields(logrus.Fields{
		"type": msg.Type,
		"from": msg.From,
	}).Debug("Processing message")

	var err error

	switch msg.Type {
	case net.TypeHeartbeat:
		err = n.handleHeartbeat(msg)
	case net.TypeStateRequest:
		err = n.handleStateRequest(msg)
	case net.TypeStateResponse:
		err = n.handleStateResponse(msg)
	case net.TypeValidatorUpdate:
		err = n.handleValidatorUpdate(msg)
	case net.TypeKeyExchangeInit:
		err = n.handleKeyExchangeInit(msg)
	case net.TypeKeyExchangeResponse:
		err = n.handleKeyExchangeResponse(msg)
	case net.TypeSecure:
		err = n.handleSecure(msg)
	case net.TypeBlock:
		err = n.handleBlock(msg)
	case net.TypeJudgment, net.TypePattern:
		// Carried for relays; no local handler.
	default:
		n.logger.WithField("type", msg.Type).Debug("Ignoring unknown message type")
	}

	if err != nil {
		n.countError()
		n.logger.WithField("type", msg.Type).WithError(err).Warn("Failed to process message")
	}
}

func (n *Node) handleHeartbeat(msg net.Message) error {
	var hb net.Heartbeat
	if err := msg.DecodePayload(&hb); err != nil {
		return err
	}

	n.engine.UpdateValidatorEScore(hb.NodeID, hb.EScore)

	if hb.FinalizedSlot > n.finalizedView() {
		n.flagSyncNeeded(hb.FinalizedSlot)
	}

	return nil
}

func (n *Node) handleStateRequest(msg net.Message) error {
	var req net.StateRequest
	if err := msg.DecodePayload(&req); err != nil {
		return err
	}

	out, err := net.NewMessage(net.TypeStateResponse, "", msg.From, net.StateResponse{
		FromSlot:      req.FromSlot,
		CurrentSlot:   n.engine.CurrentSlot(),
		FinalizedSlot: n.finalizedView(),
	})
	if err != nil {
		return err
	}

	return n.trans.SendTo(msg.From, out)
}

func (n *Node) handleStateResponse(msg net.Message) error {
	var resp net.StateResponse
	if err := msg.DecodePayload(&resp); err != nil {
		return err
	}

	if resp.FinalizedSlot > n.finalizedView() {
		n.flagSyncNeeded(resp.FinalizedSlot)
		return nil
	}

	n.controlLock.Lock()
	n.needSync = false
	n.controlLock.Unlock()

	n.maybeResumeParticipation()

	return nil
}

func (n *Node) handleValidatorUpdate(msg net.Message) error {
	var vu net.ValidatorUpdate
	if err := msg.DecodePayload(&vu); err != nil {
		return err
	}

	if vu.Validator == nil {
		return fmt.Errorf("validator update without validator")
	}

	switch vu.Action {
	case net.ValidatorAdd:
		n.engine.RegisterValidator(vu.Validator)
	case net.ValidatorRemove:
		n.engine.RemoveValidator(vu.Validator.PubKeyHex)
	default:
		return fmt.Errorf("unknown validator action %s", vu.Action)
	}

	return nil
}

func (n *Node) handleKeyExchangeInit(msg net.Message) error {
	var init channel.KeyExchangeInit
	if err := msg.DecodePayload(&init); err != nil {
		return err
	}

	// The transport identified the sender; don't trust the payload.
	init.From = msg.From

	resp, err := n.channels.HandleKeyExchangeInit(&init)
	if err != nil {
		return err
	}

	out, err := net.NewMessage(net.TypeKeyExchangeResponse, "", msg.From, resp)
	if err != nil {
		return err
	}

	return n.trans.SendTo(msg.From, out)
}

func (n *Node) handleKeyExchangeResponse(msg net.Message) error {
	var resp channel.KeyExchangeResponse
	if err := msg.DecodePayload(&resp); err != nil {
		return err
	}

	resp.From = msg.From

	return n.channels.HandleKeyExchangeResponse(&resp)
}

func (n *Node) handleSecure(msg net.Message) error {
	var env channel.Envelope
	if err := msg.DecodePayload(&env); err != nil {
		return err
	}

	env.From = msg.From

	payload, ok := n.channels.ReceiveSecure(&env)
	if !ok {
		return fmt.Errorf("undecryptable envelope from %s", msg.From)
	}

	n.controlLock.Lock()
	fn := n.onSecure
	n.controlLock.Unlock()

	if fn != nil {
		fn(msg.From, payload)
	}

	return nil
}

func (n *Node) handleBlock(msg net.Message) error {
	block := new(chain.Block)
	if err := block.Unmarshal(msg.Payload); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"slot": block.Slot(),
		"from": msg.From,
	}).Debug("Received finalized block")

	n.store.StoreBlock(block)

	return nil
}

func (n *Node) handlePeerConnect(peerID string) {
	n.logger.WithFields(logrus.Fields{
		"peer":  peerID,
		"peers": len(n.trans.ConnectedPeers()),
	}).Debug("Peer connected")

	// Open a secure channel with every new peer.
	init, err := n.channels.InitiateKeyExchange(peerID)
	if err != nil {
		n.countError()
		n.logger.WithField("peer", peerID).WithError(err).Warn("Failed to initiate key exchange")
	} else if init != nil {
		out, err := net.NewMessage(net.TypeKeyExchangeInit, "", peerID, init)
		if err == nil {
			err = n.trans.SendTo(peerID, out)
		}
		if err != nil {
			n.countError()
			n.logger.WithField("peer", peerID).WithError(err).Warn("Failed to send key exchange")
		}
	}

	n.maybeResumeParticipation()
}

func (n *Node) handlePeerDisconnect(peerID string) {
	peerCount := len(n.trans.ConnectedPeers())

	n.logger.WithFields(logrus.Fields{
		"peer":  peerID,
		"peers": peerCount,
	}).Debug("Peer disconnected")

	if peerCount < n.conf.MinPeers && n.getState() == Participating {
		n.logger.WithFields(logrus.Fields{
			"peers":     peerCount,
			"min_peers": n.conf.MinPeers,
		}).Warn("Insufficient peers")
		n.setState(Syncing)
	}
}

func (n *Node) handleTransportError(err error) {
	n.countError()
	n.logger.WithError(err).Warn("Transport error")
}

func (n *Node) handlePeerDiscovered(addr string) {
	if addr == n.trans.LocalAddr() {
		return
	}

	if err := n.trans.ConnectToPeer(addr); err != nil {
		n.countError()
		n.logger.WithField("addr", addr).WithError(err).Warn("Failed to connect to discovered peer")
	}
}

func (n *Node) handleConsensusStarted() {
	n.controlLock.Lock()
	n.consensusReady = true
	n.controlLock.Unlock()

	if n.getState() == Online {
		n.logger.Debug("Consensus round begun")
		n.setState(Participating)
	}
}

func (n *Node) handleBlockFinalized(block *chain.Block) {
	n.store.StoreBlock(block)

	n.goFunc(func() {
		n.pipeline.AnchorBlock(context.Background(), block, 0)
	})

	n.bus.Publish(event.BlockFinalized, FinalizedBlockEvent{
		Slot:  block.Slot(),
		Hash:  block.Hex(),
		Block: block,
	})
}

// finalizedView is the node's best-known finalized slot. Finalized blocks
// can arrive by broadcast before the local engine observes them, so the
// store counts towards the view.
func (n *Node) finalizedView() int {
	finalized := n.engine.LastFinalizedSlot()
	if latest := n.store.GetLatestBlock(); latest != nil && latest.Slot() > finalized {
		return latest.Slot()
	}
	return finalized
}

func (n *Node) flagSyncNeeded(remoteFinalized int) {
	n.controlLock.Lock()
	already := n.needSync
	n.needSync = true
	n.controlLock.Unlock()

	if !already {
		n.logger.WithFields(logrus.Fields{
			"local":  n.finalizedView(),
			"remote": remoteFinalized,
		}).Debug("Falling behind")
	}
}

// maybeResumeParticipation promotes the node back to Participating once the
// consensus round is live, the sync flag is clear, and enough peers are
// connected.
func (n *Node) maybeResumeParticipation() {
	n.controlLock.Lock()
	ready := n.consensusReady
	behind := n.needSync
	n.controlLock.Unlock()

	if !ready || behind {
		return
	}

	if len(n.trans.ConnectedPeers()) < n.conf.MinPeers {
		return
	}

	if s := n.getState(); s == Syncing || s == Online {
		n.setState(Participating)
	}
}

// ProposeBlock submits a block to the consensus engine and broadcasts it
// once finalized. Only a participating node proposes; otherwise the block
// is dropped with a warning and nil is returned.
func (n *Node) ProposeBlock(block *chain.Block) *chain.Block {
	if s := n.getState(); s != Participating {
		n.logger.WithField("state", s.String()).Warn("Not participating, dropping proposal")
		return nil
	}

	finalized, err := n.engine.ProposeBlock(block)
	if err != nil {
		n.countError()
		n.logger.WithError(err).Warn("Proposal rejected")
		return nil
	}

	if raw, err := finalized.Marshal(); err == nil {
		n.trans.BroadcastBlock(raw)
	}

	return finalized
}

// ConnectToPeer dials a peer through the transport. Offline nodes ignore
// the call.
func (n *Node) ConnectToPeer(addr string) error {
	if n.getState() == Offline {
		n.logger.WithField("addr", addr).Debug("Node offline, ignoring connect")
		return nil
	}

	return n.trans.ConnectToPeer(addr)
}

// AddSeedNode feeds an address to discovery. Offline nodes ignore the call.
func (n *Node) AddSeedNode(addr string) {
	if n.getState() == Offline {
		n.logger.WithField("addr", addr).Debug("Node offline, ignoring seed")
		return
	}

	n.disco.AddSeedNode(addr)
}

// BroadcastJudgment relays a judgment payload to all connected peers.
func (n *Node) BroadcastJudgment(payload []byte) {
	if n.getState() == Offline {
		n.logger.Debug("Node offline, dropping judgment")
		return
	}

	n.trans.BroadcastJudgment(payload)
}

// BroadcastPattern relays a pattern payload to all connected peers.
func (n *Node) BroadcastPattern(payload []byte) {
	if n.getState() == Offline {
		n.logger.Debug("Node offline, dropping pattern")
		return
	}

	n.trans.BroadcastPattern(payload)
}

// SendSecure encrypts a message for peerID over the established secure
// channel and sends it. It reports whether the message went out.
func (n *Node) SendSecure(peerID string, message interface{}) bool {
	if n.getState() == Offline {
		n.logger.Debug("Node offline, dropping secure message")
		return false
	}

	env := n.channels.SendSecure(peerID, message)
	if env == nil {
		return false
	}

	out, err := net.NewMessage(net.TypeSecure, "", peerID, env)
	if err != nil {
		n.countError()
		return false
	}

	if err := n.trans.SendTo(peerID, out); err != nil {
		n.countError()
		n.logger.WithField("peer", peerID).WithError(err).Warn("Failed to send secure message")
		return false
	}

	return true
}

// OnSecureMessage registers the callback that receives decrypted secure
// payloads.
func (n *Node) OnSecureMessage(fn func(peerID string, message interface{})) {
	n.controlLock.Lock()
	n.onSecure = fn
	n.controlLock.Unlock()
}

func (n *Node) sendHeartbeats() {
	hb := net.Heartbeat{
		NodeID:        n.validator.PublicKeyHex(),
		EScore:        n.conf.EScore,
		Slot:          n.engine.CurrentSlot(),
		FinalizedSlot: n.finalizedView(),
		State:         n.getState().String(),
	}

	msg, err := net.NewMessage(net.TypeHeartbeat, "", "", hb)
	if err != nil {
		n.countError()
		return
	}

	for _, peerID := range n.trans.ConnectedPeers() {
		if err := n.trans.SendTo(peerID, msg); err != nil {
			n.logger.WithField("peer", peerID).WithError(err).Debug("Failed to send heartbeat")
		}
	}
}

func (n *Node) checkSync() {
	// When short of peers, redial the seeds. Reconnecting to a live peer
	// replaces the connection without a disconnect event.
	if len(n.trans.ConnectedPeers()) < n.conf.MinPeers {
		n.disco.Reannounce()
	}

	n.controlLock.Lock()
	behind := n.needSync
	n.controlLock.Unlock()

	if !behind {
		return
	}

	if s := n.getState(); s == Participating || s == Online {
		n.logger.Debug("SYNCING")
		n.setState(Syncing)
	}

	msg, err := net.NewMessage(net.TypeStateRequest, "", "", net.StateRequest{
		FromSlot: n.finalizedView() + 1,
	})
	if err != nil {
		n.countError()
		return
	}

	for _, peerID := range n.trans.ConnectedPeers() {
		if err := n.trans.SendTo(peerID, msg); err != nil {
			n.logger.WithField("peer", peerID).WithError(err).Debug("Failed to send state request")
		}
	}
}

// refreshValidators re-announces the local validator so late joiners learn
// it without a join protocol.
func (n *Node) refreshValidators() {
	vu := net.ValidatorUpdate{
		Validator: n.selfPeer(),
		Action:    net.ValidatorAdd,
	}

	msg, err := net.NewMessage(net.TypeValidatorUpdate, "", "", vu)
	if err != nil {
		n.countError()
		return
	}

	for _, peerID := range n.trans.ConnectedPeers() {
		if err := n.trans.SendTo(peerID, msg); err != nil {
			n.logger.WithField("peer", peerID).WithError(err).Debug("Failed to send validator update")
		}
	}
}

func (n *Node) reportMetrics() {
	stats := n.GetStats()

	n.logStats(stats)

	n.bus.Publish(event.MetricsReported, stats)
}

func (n *Node) selfPeer() *peers.Peer {
	return n.validator.AsPeer(n.trans.LocalAddr(), n.conf.EScore)
}

func (n *Node) countError() {
	n.controlLock.Lock()
	n.errors++
	n.controlLock.Unlock()
}

// GetBlock returns the stored block for a slot, or nil
func (n *Node) GetBlock(slot int) *chain.Block {
	return n.store.GetBlock(slot)
}

// GetBlocks returns the stored blocks in the slot range
func (n *Node) GetBlocks(fromSlot, toSlot int) []*chain.Block {
	return n.store.GetBlocks(fromSlot, toSlot)
}

// GetAnchor returns the anchor record for a slot, or nil
func (n *Node) GetAnchor(slot int) *chain.Anchor {
	return n.store.GetAnchor(slot)
}

// GetFailedAnchors returns up to limit anchors awaiting resubmission
func (n *Node) GetFailedAnchors(limit int) []*chain.FailedAnchor {
	return n.store.GetFailedAnchors(limit)
}

// GetPeers returns the IDs of the connected peers
func (n *Node) GetPeers() []string {
	return n.trans.ConnectedPeers()
}

// GetSecurePeers returns the IDs of peers with an established secure channel
func (n *Node) GetSecurePeers() []string {
	return n.channels.EstablishedPeers()
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	transInfo := n.trans.Info()
	storeStats := n.store.Stats()
	pipelineStats := n.pipeline.Stats()
	channelInfo := n.channels.Info()

	n.controlLock.Lock()
	handled := n.messagesHandled
	errCount := n.errors
	n.controlLock.Unlock()

	s := map[string]string{
		"id":                strconv.FormatUint(uint64(n.validator.ID()), 10),
		"moniker":           n.validator.Moniker,
		"state":             n.getState().String(),
		"uptime":            timeElapsed.String(),
		"e_score":           strconv.FormatFloat(n.conf.EScore, 'f', 2, 64),
		"num_peers":         strconv.Itoa(len(n.trans.ConnectedPeers())),
		"num_validators":    strconv.Itoa(n.engine.ValidatorCount()),
		"current_slot":      strconv.Itoa(n.engine.CurrentSlot()),
		"finalized_slot":    strconv.Itoa(n.finalizedView()),
		"blocks_stored":     strconv.Itoa(storeStats["blocks_stored"]),
		"anchors_stored":    strconv.Itoa(storeStats["anchors_stored"]),
		"anchors_submitted": strconv.Itoa(pipelineStats["anchors_submitted"]),
		"anchors_failed":    strconv.Itoa(pipelineStats["anchors_failed"]),
		"secure_channels":   strconv.Itoa(channelInfo["established"]),
		"messages_handled":  strconv.Itoa(handled),
		"messages_sent":     transInfo["messages_sent"],
		"messages_received": transInfo["messages_received"],
		"errors":            strconv.Itoa(errCount + storeStats["errors"] + channelInfo["errors"]),
	}
	return s
}

func (n *Node) logStats(stats map[string]string) {
	n.logger.WithFields(logrus.Fields{
		"state":          stats["state"],
		"num_peers":      stats["num_peers"],
		"current_slot":   stats["current_slot"],
		"finalized_slot": stats["finalized_slot"],
		"blocks_stored":  stats["blocks_stored"],
		"errors":         stats["errors"],
	}).Debug("Stats")
}

func advertisePort(addr string) int {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if p, err := strconv.Atoi(addr[i+1:]); err == nil {
			return p
		}
	}
	return 0
}
