// Package roapmsg defines the wire format for the ROAP (RTCWEB Offer/Answer
// Protocol) message exchange used to negotiate SDP between two peers.
//
// All messages are JSON-encoded with a "messageType" discriminator field.
// This package has no dependency on the negotiation engine itself — it only
// knows how to marshal and validate the wire shape.
package roapmsg

import (
	"encoding/json"
	"fmt"
)

// Type is the ROAP message type discriminator.
type Type string

const (
	Offer         Type = "OFFER"
	OfferRequest  Type = "OFFER_REQUEST"
	OfferResponse Type = "OFFER_RESPONSE"
	Answer        Type = "ANSWER"
	OK            Type = "OK"
	Error         Type = "ERROR"
)

// ErrorType enumerates the ROAP error codes carried on an ERROR message.
type ErrorType string

const (
	ErrConflict       ErrorType = "CONFLICT"
	ErrDoubleConflict ErrorType = "DOUBLECONFLICT"
	ErrInvalidState   ErrorType = "INVALID_STATE"
	ErrOutOfOrder     ErrorType = "OUT_OF_ORDER"
	ErrRetry          ErrorType = "RETRY"
	ErrFailed         ErrorType = "FAILED"
	ErrNoMatch        ErrorType = "NOMATCH"
	ErrTimeout        ErrorType = "TIMEOUT"
)

// RetryableErrorTypes are the ERROR codes that the coordinator absorbs by
// retrying the in-flight offer rather than surfacing a failure (spec §4.3).
var RetryableErrorTypes = map[ErrorType]bool{
	ErrDoubleConflict: true,
	ErrInvalidState:   true,
	ErrOutOfOrder:     true,
	ErrRetry:          true,
}

// LocalTieBreaker is the fixed tie-breaker value every locally generated
// OFFER carries. It sits one below the maximum uint32 so a remote peer using
// random tie-breakers can essentially never tie it, while 0xFFFFFFFF stays
// reserved as a sentinel. Preserve this constant exactly — it is load
// bearing for glare resolution (spec §9).
const LocalTieBreaker uint32 = 0xFFFFFFFE

// Message is the ROAP wire unit (spec §3). SDP and ErrorType are only
// meaningful for a subset of MessageType values; Validate enforces that.
type Message struct {
	MessageType Type       `json:"messageType"`
	Seq         uint64     `json:"seq"`
	SDP         string     `json:"sdp,omitempty"`
	TieBreaker  *uint32    `json:"tieBreaker,omitempty"`
	ErrorType   *ErrorType `json:"errorType,omitempty"`

	OffererSessionID  string `json:"offererSessionId,omitempty"`
	AnswererSessionID string `json:"answererSessionId,omitempty"`
}

// Validate checks that a Message carries the fields required for its
// MessageType (spec §3) and returns an error naming the first missing one.
// It sends nothing to the peer: roap.Coordinator.RoapMessageReceived returns
// this error to its caller without emitting an ERROR or changing state.
func (m *Message) Validate() error {
	switch m.MessageType {
	case Offer:
		if m.SDP == "" {
			return fmt.Errorf("%s message missing sdp", m.MessageType)
		}
		if m.TieBreaker == nil {
			return fmt.Errorf("%s message missing tieBreaker", m.MessageType)
		}
	case OfferResponse, Answer:
		if m.SDP == "" {
			return fmt.Errorf("%s message missing sdp", m.MessageType)
		}
	case OfferRequest, OK:
		// No required payload beyond seq.
	case Error:
		if m.ErrorType == nil {
			return fmt.Errorf("%s message missing errorType", m.MessageType)
		}
	default:
		return fmt.Errorf("unknown messageType %q", m.MessageType)
	}
	return nil
}

// NewOffer builds a locally originated OFFER, always carrying LocalTieBreaker.
func NewOffer(seq uint64, sdp string) Message {
	tb := LocalTieBreaker
	return Message{MessageType: Offer, Seq: seq, SDP: sdp, TieBreaker: &tb}
}

// NewOfferResponse builds an OFFER_RESPONSE reusing the requester's seq.
func NewOfferResponse(seq uint64, sdp string) Message {
	return Message{MessageType: OfferResponse, Seq: seq, SDP: sdp}
}

// NewAnswer builds an ANSWER for the given in-flight seq.
func NewAnswer(seq uint64, sdp string) Message {
	return Message{MessageType: Answer, Seq: seq, SDP: sdp}
}

// NewOK builds an OK acknowledging the given seq.
func NewOK(seq uint64) Message {
	return Message{MessageType: OK, Seq: seq}
}

// NewError builds an ERROR of the given type, echoing seq unchanged.
func NewError(seq uint64, errType ErrorType) Message {
	et := errType
	return Message{MessageType: Error, Seq: seq, ErrorType: &et}
}

// Marshal serializes a Message to JSON.
func Marshal(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling ROAP message: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes a JSON-encoded ROAP message and validates its shape.
func Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding ROAP message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid ROAP message: %w", err)
	}
	return msg, nil
}
