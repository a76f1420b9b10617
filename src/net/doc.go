// Package net implements transports for messages exchanged between Agora
// nodes.
//
// This package contains implementations of the Transport interface, which
// nodes use to push wire messages (heartbeats, state sync, validator
// updates, key-exchange envelopes, block broadcasts) to their peers. There
// are two implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// Unlike a request/response RPC layer, the Transport is push-oriented: every
// inbound message surfaces on the Consumer channel and replies, when
// required, are sent as independent messages.
//
// To use a TCP transport, set the following configuration options in the
// Agora Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes.
// If BindAddr is a local address not reachable by other peers, it is usefull
// to set AdvertiseAddr to the reachable public address.
package net
