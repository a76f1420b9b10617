package discovery

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// StaticDiscovery announces a fixed list of seed addresses. Each address is
// announced once when first seen, no matter how often it is added or how
// often the discovery is restarted; Reannounce repeats the whole list.
type StaticDiscovery struct {
	sync.Mutex

	seeds     []string
	announced map[string]bool
	started   bool

	onDiscovered func(addr string)

	logger *logrus.Entry
}

// NewStaticDiscovery creates a discovery over the given seed addresses.
func NewStaticDiscovery(seeds []string, logger *logrus.Entry) *StaticDiscovery {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	d := &StaticDiscovery{
		announced: make(map[string]bool),
		logger:    logger.WithField("component", "discovery"),
	}

	for _, seed := range seeds {
		if seed == "" {
			continue
		}
		d.seeds = append(d.seeds, seed)
	}

	return d
}

// Start implements the Discovery interface. All pending seeds are announced
// before Start returns.
func (d *StaticDiscovery) Start() error {
	d.Lock()
	d.started = true
	pending := d.pending()
	d.Unlock()

	d.announce(pending)

	return nil
}

// Stop implements the Discovery interface.
func (d *StaticDiscovery) Stop() {
	d.Lock()
	d.started = false
	d.Unlock()
}

// AddSeedNode implements the Discovery interface.
func (d *StaticDiscovery) AddSeedNode(addr string) {
	if addr == "" {
		return
	}

	d.Lock()
	d.seeds = append(d.seeds, addr)
	var pending []string
	if d.started {
		pending = d.pending()
	}
	d.Unlock()

	d.announce(pending)
}

// Reannounce implements the Discovery interface. The announced bookkeeping
// is left untouched, it only dedupes the initial announcements.
func (d *StaticDiscovery) Reannounce() {
	d.Lock()
	if !d.started {
		d.Unlock()
		return
	}

	seen := map[string]bool{}
	var seeds []string
	for _, seed := range d.seeds {
		if !seen[seed] {
			seen[seed] = true
			seeds = append(seeds, seed)
		}
	}
	d.Unlock()

	d.announce(seeds)
}

// OnPeerDiscovered implements the Discovery interface.
func (d *StaticDiscovery) OnPeerDiscovered(fn func(addr string)) {
	d.Lock()
	d.onDiscovered = fn
	d.Unlock()
}

// pending must be called with the lock held. It marks the returned addresses
// as announced.
func (d *StaticDiscovery) pending() []string {
	var res []string
	for _, seed := range d.seeds {
		if !d.announced[seed] {
			d.announced[seed] = true
			res = append(res, seed)
		}
	}
	return res
}

func (d *StaticDiscovery) announce(addrs []string) {
	d.Lock()
	fn := d.onDiscovered
	d.Unlock()

	for _, addr := range addrs {
		d.logger.WithField("addr", addr).Debug("Peer discovered")
		if fn != nil {
			fn(addr)
		}
	}
}
