// Package discovery feeds peer addresses to a node. The only production
// implementation is a static seed list; richer mechanisms plug in behind the
// same interface.
package discovery

// Discovery surfaces peer addresses for the node to connect to.
type Discovery interface {
	// Start begins announcing peers through the OnPeerDiscovered callback.
	Start() error

	// Stop halts announcements.
	Stop()

	// AddSeedNode adds an address to the seed list. If discovery is already
	// running the address is announced immediately.
	AddSeedNode(addr string)

	// Reannounce announces every known address again, so a node that lost
	// its peers can redial them.
	Reannounce()

	// OnPeerDiscovered registers the callback that receives discovered
	// addresses. It must be set before Start.
	OnPeerDiscovered(fn func(addr string))
}
