package anchor

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SubmitRequest is the wire argument of the submitter daemon's
// Submitter.SubmitAnchor method.
type SubmitRequest struct {
	Slot       int    `json:"slot"`
	MerkleRoot string `json:"merkleRoot"`
	BlockHash  string `json:"blockHash"`
}

// RPCLedger submits anchors to an external submitter daemon over JSON-RPC.
// The connection is established lazily and dropped on error, so a restarted
// daemon is picked up by the next submission.
type RPCLedger struct {
	submitterAddr string
	timeout       time.Duration
	logger        *logrus.Entry

	rpc *rpc.Client
	l   sync.Mutex
}

// NewRPCLedger creates a ledger client for the submitter daemon listening at
// submitterAddr. No connection is attempted until the first submission.
func NewRPCLedger(submitterAddr string, timeout time.Duration, logger *logrus.Entry) *RPCLedger {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &RPCLedger{
		submitterAddr: submitterAddr,
		timeout:       timeout,
		logger:        logger,
	}
}

func (p *RPCLedger) getConnection() (*rpc.Client, error) {
	p.l.Lock()
	defer p.l.Unlock()

	if p.rpc == nil {
		conn, err := net.DialTimeout("tcp", p.submitterAddr, p.timeout)
		if err != nil {
			return nil, err
		}

		p.rpc = jsonrpc.NewClient(conn)
	}

	return p.rpc, nil
}

func (p *RPCLedger) dropConnection(client *rpc.Client) {
	p.l.Lock()
	if p.rpc == client {
		p.rpc = nil
	}
	p.l.Unlock()

	client.Close()
}

// SubmitAnchor implements the Ledger interface.
func (p *RPCLedger) SubmitAnchor(ctx context.Context, slot int, merkleRoot, blockHash string) (string, error) {
	client, err := p.getConnection()
	if err != nil {
		return "", err
	}

	req := SubmitRequest{
		Slot:       slot,
		MerkleRoot: merkleRoot,
		BlockHash:  blockHash,
	}

	var signature string

	call := client.Go("Submitter.SubmitAnchor", req, &signature, nil)

	select {
	case <-ctx.Done():
		// The call may still land on the daemon; the connection can't be
		// reused once abandoned mid-call.
		p.dropConnection(client)
		return "", ctx.Err()
	case <-call.Done:
		if call.Error != nil {
			p.dropConnection(client)
			return "", call.Error
		}
	}

	p.logger.WithFields(logrus.Fields{
		"slot":      slot,
		"signature": signature,
	}).Debug("RPCLedger.SubmitAnchor")

	return signature, nil
}
