package anchor

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/sirupsen/logrus"
)

// SubmitterServer is the RPC-facing half of the submitter daemon. It decodes
// Submitter.SubmitAnchor requests from validating nodes and records them on
// the backing ledger. Every exported method is part of the RPC surface.
type SubmitterServer struct {
	netListener *net.Listener
	rpcServer   *rpc.Server
	ledger      Ledger
	logger      *logrus.Entry
}

// NewSubmitterServer creates a new SubmitterServer
func NewSubmitterServer(bindAddress string, ledger Ledger, logger *logrus.Entry) (*SubmitterServer, error) {
	server := &SubmitterServer{
		ledger: ledger,
		logger: logger,
	}

	if err := server.register(bindAddress); err != nil {
		return nil, err
	}

	return server, nil
}

func (p *SubmitterServer) register(bindAddress string) error {
	rpcServer := rpc.NewServer()

	rpcServer.RegisterName("Submitter", p)

	p.rpcServer = rpcServer

	l, err := net.Listen("tcp", bindAddress)
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to listen")
		return err
	}

	p.netListener = &l

	return nil
}

func (p *SubmitterServer) listen() error {
	for {
		conn, err := (*p.netListener).Accept()
		if err != nil {
			return err
		}

		go (*p.rpcServer).ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// SubmitAnchor responds to RPC requests from validating nodes.
func (p *SubmitterServer) SubmitAnchor(req SubmitRequest, signature *string) error {
	sig, err := p.ledger.SubmitAnchor(context.Background(), req.Slot, req.MerkleRoot, req.BlockHash)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"slot":  req.Slot,
			"error": err,
		}).Error("SubmitterServer.SubmitAnchor")

		return err
	}

	*signature = sig

	p.logger.WithFields(logrus.Fields{
		"slot":      req.Slot,
		"signature": sig,
	}).Debug("SubmitterServer.SubmitAnchor")

	return nil
}
