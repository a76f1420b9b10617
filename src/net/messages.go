package net

import (
	"bytes"
	"fmt"

	"github.com/agoranet/agora/src/peers"
	"github.com/ugorji/go/codec"
)

// Wire message types. The string values are part of the wire protocol; nodes
// ignore messages with a type they do not recognise.
const (
	TypeHeartbeat           = "HEARTBEAT"
	TypeStateRequest        = "STATE_REQUEST"
	TypeStateResponse       = "STATE_RESPONSE"
	TypeValidatorUpdate     = "VALIDATOR_UPDATE"
	TypeKeyExchangeInit     = "KEY_EXCHANGE_INIT"
	TypeKeyExchangeResponse = "KEY_EXCHANGE_RESPONSE"
	TypeBlock               = "BLOCK"
	TypeJudgment            = "JUDGMENT"
	TypePattern             = "PATTERN"
	TypeSecure              = "SECURE"

	// typeHello identifies a TCP connection before any other traffic flows
	// on it. It never leaves the transport layer.
	typeHello = "HELLO"
)

// Actions carried by a ValidatorUpdate.
const (
	ValidatorAdd    = "ADD"
	ValidatorRemove = "REMOVE"
)

// Message is the envelope that moves between nodes. Payload holds the typed
// payload in canonical JSON; use DecodePayload to recover it.
type Message struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// NewMessage encodes payload and wraps it in a Message. A nil payload
// produces an empty-payload message.
func NewMessage(kind, from, to string, payload interface{}) (*Message, error) {
	msg := &Message{
		Type: kind,
		From: from,
		To:   to,
	}
	if payload != nil {
		raw, err := encodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("net: encoding %s payload: %v", kind, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// DecodePayload unmarshals the message payload into v.
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("net: %s message has no payload", m.Type)
	}
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoderBytes(m.Payload, jh)
	return dec.Decode(v)
}

func encodePayload(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Heartbeat advertises a node's liveness and sync height to its peers.
type Heartbeat struct {
	NodeID        string  `json:"nodeId"`
	EScore        float64 `json:"eScore"`
	Slot          int     `json:"slot"`
	FinalizedSlot int     `json:"finalizedSlot"`
	State         string  `json:"state"`
}

// StateRequest asks a peer for its view of the chain from a given slot.
type StateRequest struct {
	FromSlot int `json:"fromSlot"`
}

// StateResponse answers a StateRequest with the responder's slot heights.
type StateResponse struct {
	FromSlot      int `json:"fromSlot"`
	CurrentSlot   int `json:"currentSlot"`
	FinalizedSlot int `json:"finalizedSlot"`
}

// ValidatorUpdate announces that a validator joined or left the set.
type ValidatorUpdate struct {
	Validator *peers.Peer `json:"validator"`
	Action    string      `json:"action"`
}
