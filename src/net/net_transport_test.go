package net

import (
	"testing"
	"time"

	"github.com/agoranet/agora/src/common"
)

func newTestTCPTransport(id string, t *testing.T) *NetworkTransport {
	trans, err := NewTCPTransport(id, "127.0.0.1:0", "", time.Second, common.NewTestEntry(t))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := trans.Listen(); err != nil {
		t.Fatalf("err: %v", err)
	}

	return trans
}

func TestTCPTransportStartStop(t *testing.T) {
	trans := newTestTCPTransport("nodeA", t)

	if err := trans.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := trans.Listen(); err != ErrTransportShutdown {
		t.Fatalf("err: %v, expected ErrTransportShutdown", err)
	}
}

func TestTCPTransportExchange(t *testing.T) {
	a := newTestTCPTransport("nodeA", t)
	defer a.Close()

	b := newTestTCPTransport("nodeB", t)
	defer b.Close()

	accepted := make(chan string, 1)
	b.OnConnect(func(id string) { accepted <- id })

	if err := a.ConnectToPeer(b.LocalAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if p := a.ConnectedPeers(); len(p) != 1 || p[0] != "nodeB" {
		t.Fatalf("nodeA peers: %v", p)
	}

	select {
	case id := <-accepted:
		if id != "nodeA" {
			t.Fatalf("nodeB accepted %q, expected nodeA", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for nodeB to accept the connection")
	}

	req, err := NewMessage(TypeStateRequest, "", "", StateRequest{FromSlot: 40})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := a.SendTo("nodeB", req); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case got := <-b.Consumer():
		if got.Type != TypeStateRequest || got.From != "nodeA" {
			t.Fatalf("message %s from %s", got.Type, got.From)
		}
		var sr StateRequest
		if err := got.DecodePayload(&sr); err != nil {
			t.Fatalf("err: %v", err)
		}
		if sr.FromSlot != 40 {
			t.Fatalf("fromSlot: %d, expected 40", sr.FromSlot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for state request")
	}

	resp, err := NewMessage(TypeStateResponse, "", "", StateResponse{
		FromSlot:      40,
		CurrentSlot:   700,
		FinalizedSlot: 600,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := b.SendTo("nodeA", resp); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case got := <-a.Consumer():
		if got.Type != TypeStateResponse || got.From != "nodeB" {
			t.Fatalf("message %s from %s", got.Type, got.From)
		}
		var sr StateResponse
		if err := got.DecodePayload(&sr); err != nil {
			t.Fatalf("err: %v", err)
		}
		if sr.CurrentSlot != 700 || sr.FinalizedSlot != 600 {
			t.Fatalf("slots: %+v", sr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for state response")
	}
}

func TestTCPTransportDisconnect(t *testing.T) {
	a := newTestTCPTransport("nodeA", t)

	b := newTestTCPTransport("nodeB", t)
	defer b.Close()

	accepted := make(chan string, 1)
	b.OnConnect(func(id string) { accepted <- id })

	dropped := make(chan string, 1)
	b.OnDisconnect(func(id string) { dropped <- id })

	if err := a.ConnectToPeer(b.LocalAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for nodeB to accept the connection")
	}

	a.Close()

	select {
	case id := <-dropped:
		if id != "nodeA" {
			t.Fatalf("nodeB dropped %q, expected nodeA", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for disconnect")
	}

	if p := b.ConnectedPeers(); len(p) != 0 {
		t.Fatalf("nodeB still has peers: %v", p)
	}
}
