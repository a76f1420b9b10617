// Package event implements a string-keyed publish/subscribe bus used to
// decouple the node's components.
package event

import "sync"

// Event kinds published by the node and its collaborators.
const (
	NodeStarted     = "node:started"
	NodeStopped     = "node:stopped"
	BlockFinalized  = "block:finalized"
	BlockStored     = "block:stored"
	AnchorStored    = "anchor:stored"
	AnchorFailed    = "anchor:failed"
	MetricsReported = "metrics:reported"
)

// Handler processes a single published event.
type Handler func(payload interface{})

// Subscription ties a Handler to an event kind. It is returned by Subscribe
// and accepted by Unsubscribe.
type Subscription struct {
	bus     *Bus
	kind    string
	handler Handler
}

// Unsubscribe removes the subscription from its bus.
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

// A Bus dispatches events to registered handlers. Handlers are registered
// per event kind and invoked synchronously, in registration order, from the
// publisher's goroutine.
type Bus struct {
	mutex sync.RWMutex
	subs  map[string][]*Subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers a handler for events of the given kind.
func (b *Bus) Subscribe(kind string, handler Handler) *Subscription {
	sub := &Subscription{
		bus:     b,
		kind:    kind,
		handler: handler,
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	oldSubs := b.subs[kind]
	subs := make([]*Subscription, len(oldSubs)+1)
	copy(subs, oldSubs)
	subs[len(oldSubs)] = sub
	b.subs[kind] = subs

	return sub
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored, so
// calling it twice is safe.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.subs[sub.kind]
	for i, s := range subs {
		if s == sub {
			if len(subs) == 1 {
				delete(b.subs, sub.kind)
			} else {
				news := make([]*Subscription, len(subs)-1)
				copy(news[:i], subs[:i])
				copy(news[i:], subs[i+1:])
				b.subs[sub.kind] = news
			}
			return
		}
	}
}

// Publish delivers the payload to every handler registered for the kind at
// the time of the call. Delivery is synchronous; Publish returns once all
// handlers have run.
func (b *Bus) Publish(kind string, payload interface{}) {
	b.mutex.RLock()
	subs := b.subs[kind]
	b.mutex.RUnlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// Count returns the number of handlers registered for the kind.
func (b *Bus) Count(kind string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.subs[kind])
}
