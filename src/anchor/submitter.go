package anchor

import (
	"github.com/sirupsen/logrus"
)

// Submitter is a standalone anchor-submission daemon. It accepts JSON-RPC
// connections from validating nodes, whose RPCLedger clients call
// Submitter.SubmitAnchor, and records the anchors on a backing ledger. A
// submitter can be implemented in any programming language as long as it
// responds to the same RPC requests.
type Submitter struct {
	bindAddress string

	ledger Ledger

	server *SubmitterServer

	logger *logrus.Entry
}

// NewSubmitter creates a new Submitter and starts accepting connections.
func NewSubmitter(bindAddress string, ledger Ledger, logger *logrus.Entry) (*Submitter, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	server, err := NewSubmitterServer(bindAddress, ledger, logger)

	if err != nil {
		return nil, err
	}

	submitter := &Submitter{
		bindAddress: bindAddress,
		ledger:      ledger,
		server:      server,
		logger:      logger,
	}

	go submitter.server.listen()

	return submitter, nil
}

// Addr returns the address the daemon is listening on. With a ":0" bind
// address this is where the kernel placed the listener.
func (s *Submitter) Addr() string {
	return (*s.server.netListener).Addr().String()
}

// Shutdown closes the listener, which stops the accept loop. In-flight
// requests are left to finish on their own connections.
func (s *Submitter) Shutdown() error {
	return (*s.server.netListener).Close()
}
