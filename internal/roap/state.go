// Package roap implements the ROAP negotiation core: the state machine,
// sequence-number discipline, glare resolution, retry policy, and the
// coordinator that drives an injected PeerConnection through an SDP
// offer/answer exchange.
package roap

// State is a node of the negotiation state machine (spec §4.2).
type State int

const (
	// StateIdle is the initial state: no exchange in flight.
	StateIdle State = iota
	// StateCreatingLocalOffer: createOffer in flight for a locally
	// initiated exchange or an OFFER_REQUEST restart.
	StateCreatingLocalOffer
	// StateSettingLocalOffer: setLocalDescription(offer) in flight.
	StateSettingLocalOffer
	// StateWaitingForAnswer: local OFFER/OFFER_RESPONSE emitted, awaiting ANSWER.
	StateWaitingForAnswer
	// StateSettingRemoteAnswer: setRemoteDescription(answer) in flight.
	StateSettingRemoteAnswer
	// StateHandlingOfferRequest: createOffer flow triggered by an inbound OFFER_REQUEST.
	StateHandlingOfferRequest
	// StateSettingRemoteOffer: setRemoteDescription(offer) in flight for an inbound OFFER.
	StateSettingRemoteOffer
	// StateCreatingLocalAnswer: createAnswer/setLocalDescription/munge in flight.
	StateCreatingLocalAnswer
	// StateWaitingForOk: local ANSWER emitted, awaiting OK.
	StateWaitingForOk
	// StateBrowserError is terminal: a local peer-connection primitive rejected.
	StateBrowserError
	// StateRemoteError is terminal: the peer sent an unrecoverable error,
	// or retries were exhausted.
	StateRemoteError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreatingLocalOffer:
		return "creatingLocalOffer"
	case StateSettingLocalOffer:
		return "settingLocalOffer"
	case StateWaitingForAnswer:
		return "waitingForAnswer"
	case StateSettingRemoteAnswer:
		return "settingRemoteAnswer"
	case StateHandlingOfferRequest:
		return "handlingOfferRequest"
	case StateSettingRemoteOffer:
		return "settingRemoteOffer"
	case StateCreatingLocalAnswer:
		return "creatingLocalAnswer"
	case StateWaitingForOk:
		return "waitingForOk"
	case StateBrowserError:
		return "browserError"
	case StateRemoteError:
		return "remoteError"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is an absorbing error state from which only
// destruction is possible (spec §3 Lifecycle).
func (s State) Terminal() bool {
	return s == StateBrowserError || s == StateRemoteError
}

// EngineState is a point-in-time, read-only snapshot of the engine's
// internal state (spec §3). Safe to read concurrently; obtained via
// Coordinator.State().
type EngineState struct {
	State               State
	Seq                 uint64
	PendingLocalOffer   bool
	RetryCount          int
	LastOfferSDP        string
	LastOfferTieBreaker uint32
}

// exchangeKind distinguishes a locally initiated offer from an offer
// produced in response to a remote OFFER_REQUEST — both travel through the
// same createOffer/setLocalDescription/munge pipeline but are emitted under
// different message types (spec §4.2).
type exchangeKind int

const (
	exchangeNone exchangeKind = iota
	exchangeLocalOffer
	exchangeOfferResponse
)
