package roap

import "errors"

// ErrEngineClosed is returned by InitiateOffer/RoapMessageReceived once
// Close has been called (spec.md §9 Open Question: teardown semantics).
var ErrEngineClosed = errors.New("roap: engine closed")

// ErrEngineTerminated is returned when the engine has already transitioned
// to a terminal error state (StateBrowserError/StateRemoteError) and is
// absorbing all further input (spec §5 Cancellation).
var ErrEngineTerminated = errors.New("roap: engine is in a terminal error state")

// ErrNoPeerConnection is returned by NewCoordinator when no PeerConnection
// is supplied; the coordinator has nothing to drive without one.
var ErrNoPeerConnection = errors.New("roap: PeerConnection is required")

// maxRetries bounds retryCount at 3: the first three consecutive retryable
// ERRORs are absorbed by re-emitting the last offer, and the fourth causes
// termination (spec §4.3, §8). See DESIGN.md for why this reading was
// chosen over a competing phrasing elsewhere in the source spec.
const maxRetries = 3
