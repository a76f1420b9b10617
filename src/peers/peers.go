package peers

import (
	"sort"
	"sync"
)

type PubKeyPeers map[string]*Peer
type IDPeers map[uint32]*Peer

// Peers is a thread-safe collection of peers indexed by public key and by
// ID, with a deterministic sorted view.
type Peers struct {
	sync.RWMutex
	Sorted   []*Peer
	ByPubKey PubKeyPeers
	ByID     IDPeers
}

/* Constructors */

func NewPeers() *Peers {
	return &Peers{
		ByPubKey: make(PubKeyPeers),
		ByID:     make(IDPeers),
	}
}

func NewPeersFromSlice(source []*Peer) *Peers {
	peers := NewPeers()

	for _, peer := range source {
		peers.addPeerRaw(peer)
	}

	peers.resort()

	return peers
}

/* Add Methods */

// addPeerRaw adds a peer without refreshing the sorted view. It is not
// protected by the mutex; callers hold the lock.
func (p *Peers) addPeerRaw(peer *Peer) {
	if peer.ID == 0 {
		peer.computeID()
	}

	p.ByPubKey[peer.PubKeyHex] = peer
	p.ByID[peer.ID] = peer
}

func (p *Peers) AddPeer(peer *Peer) {
	p.Lock()
	defer p.Unlock()

	p.addPeerRaw(peer)

	p.resort()
}

// resort rebuilds the sorted view, ordered by ID. Callers hold the lock.
func (p *Peers) resort() {
	res := []*Peer{}

	for _, peer := range p.ByPubKey {
		res = append(res, peer)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	p.Sorted = res
}

/* Remove Methods */

func (p *Peers) RemovePeer(peer *Peer) {
	p.Lock()
	defer p.Unlock()

	if peer == nil {
		return
	}

	if _, ok := p.ByPubKey[peer.PubKeyHex]; !ok {
		return
	}

	delete(p.ByPubKey, peer.PubKeyHex)
	delete(p.ByID, peer.ID)

	p.resort()
}

func (p *Peers) RemovePeerByPubKey(pubKey string) {
	p.RemovePeer(p.getByPubKey(pubKey))
}

func (p *Peers) getByPubKey(pubKey string) *Peer {
	p.RLock()
	defer p.RUnlock()

	return p.ByPubKey[pubKey]
}

/* Lookup Methods */

// GetByPubKey retrieves a peer by public key.
func (p *Peers) GetByPubKey(pubKey string) (*Peer, bool) {
	p.RLock()
	defer p.RUnlock()

	peer, ok := p.ByPubKey[pubKey]

	return peer, ok
}

// UpdateEScore records a fresher eScore for the identified peer. It reports
// whether the peer was known.
func (p *Peers) UpdateEScore(pubKey string, eScore float64) bool {
	p.Lock()
	defer p.Unlock()

	peer, ok := p.ByPubKey[pubKey]
	if !ok {
		return false
	}

	peer.SetEScore(eScore)

	return true
}

/* ToSlice Methods */

func (p *Peers) ToPeerSlice() []*Peer {
	p.RLock()
	defer p.RUnlock()

	return p.Sorted
}

/* Utilities */

func (p *Peers) Len() int {
	p.RLock()
	defer p.RUnlock()

	return len(p.ByPubKey)
}

// TotalEScore sums the eScores of all peers in the set. Consensus uses it as
// the denominator of its weighted quorum.
func (p *Peers) TotalEScore() float64 {
	p.RLock()
	defer p.RUnlock()

	total := 0.0
	for _, peer := range p.ByPubKey {
		total += peer.EScore
	}

	return total
}
