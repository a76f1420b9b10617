package node

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle state of an Agora node: Offline,
// Bootstrapping, Syncing, Online, Participating, or Errored.
type State uint32

const (
	//Offline is the initial state; nothing is running.
	Offline State = iota
	//Bootstrapping is starting collaborators.
	Bootstrapping
	//Syncing is catching up with peers.
	Syncing
	//Online is running but not yet validating.
	Online
	//Participating is validating blocks.
	Participating
	//Errored is a failed start; the node must be stopped.
	Errored
)

// String returns the wire form of the state, as carried in heartbeats.
func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Bootstrapping:
		return "BOOTSTRAPPING"
	case Syncing:
		return "SYNCING"
	case Online:
		return "ONLINE"
	case Participating:
		return "PARTICIPATING"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc
const WGLIMIT = 20

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	tempWgCount := atomic.LoadInt32(&b.wgCount)
	if tempWgCount < WGLIMIT {
		b.wg.Add(1)
		atomic.AddInt32(&b.wgCount, 1)
		go func() {
			defer b.wg.Done()
			atomic.AddInt32(&b.wgCount, -1)
			f()
		}()
	}
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
