package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// NewTCPTransport returns a NetworkTransport built on top of a TCP stream
// layer, with log output going to the supplied Logger.
func NewTCPTransport(
	localID string,
	bindAddr string,
	advertiseAddr string,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	advertise := list.Addr()
	if advertiseAddr != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			list.Close()
			return nil, err
		}
		advertise = resolved
	}

	// The advertised address ends up in hello messages, so it must be a
	// routable TCP address.
	tcpAddr, ok := advertise.(*net.TCPAddr)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		list.Close()
		return nil, errNotAdvertisable
	}

	stream := &TCPStreamLayer{
		advertise: advertiseAddr,
		listener:  list.(*net.TCPListener),
	}

	return NewNetworkTransport(stream, localID, timeout, logger), nil
}
