// Package signaling transports pkg/roapmsg.Message between two ROAP
// endpoints and provides a small in-process relay hub for local
// development (spec.md §6 leaves this transport entirely to "the host").
//
// All messages are JSON-encoded with a "type" discriminator field.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/kuuji/roapmedia/pkg/roapmsg"
)

// Message is the interface implemented by all signaling envelope types.
// Each message type corresponds to a JSON object with a "type"
// discriminator field.
type Message interface {
	// MessageType returns the wire-format type string (e.g. "join", "roap").
	MessageType() string
}

// PeerInfo describes a connected peer, used in PeersMessage.
type PeerInfo struct {
	PeerID string `json:"peerId"`
}

// JoinMessage is sent by a client to announce itself to the hub.
type JoinMessage struct {
	PeerID string `json:"peerId"`
}

func (JoinMessage) MessageType() string { return "join" }

// RoapMessage wraps a roapmsg.Message with the routing information the
// transport needs but the ROAP core never sees.
type RoapMessage struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Message roapmsg.Message `json:"message"`
}

func (RoapMessage) MessageType() string { return "roap" }

// ICECandidateMessage carries a trickle ICE candidate from one peer to
// another. ROAP itself only ever carries SDP, so ICE candidates ride a
// separate envelope alongside RoapMessage.
type ICECandidateMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Candidate string `json:"candidate"`
}

func (ICECandidateMessage) MessageType() string { return "ice-candidate" }

// PeersMessage is sent by the hub to a newly connected peer, listing all
// other peers currently present, and to every existing peer, listing only
// the newly connected one.
type PeersMessage struct {
	Peers []PeerInfo `json:"peers"`
}

func (PeersMessage) MessageType() string { return "peers" }

// PeerLeftMessage is broadcast by the hub when a peer disconnects.
type PeerLeftMessage struct {
	PeerID string `json:"peerId"`
}

func (PeerLeftMessage) MessageType() string { return "peer-left" }

// messageTypes maps wire-format type strings to factory functions that
// produce zero-value pointers of the corresponding message type.
var messageTypes = map[string]func() Message{
	"join":          func() Message { return &JoinMessage{} },
	"roap":          func() Message { return &RoapMessage{} },
	"ice-candidate": func() Message { return &ICECandidateMessage{} },
	"peers":         func() Message { return &PeersMessage{} },
	"peer-left":     func() Message { return &PeerLeftMessage{} },
}

// Marshal serializes a Message to JSON, injecting the "type" discriminator field.
func Marshal(msg Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message payload: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("re-decoding message payload: %w", err)
	}

	typeBytes, err := json.Marshal(msg.MessageType())
	if err != nil {
		return nil, fmt.Errorf("marshaling message type: %w", err)
	}
	obj["type"] = typeBytes

	return json.Marshal(obj)
}

// Unmarshal deserializes a JSON message, using the "type" discriminator
// to decode into the correct concrete Message type.
func Unmarshal(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding message envelope: %w", err)
	}

	factory, ok := messageTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %q", env.Type)
	}

	msg := factory()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decoding %q message: %w", env.Type, err)
	}

	return msg, nil
}
