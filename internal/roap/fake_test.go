package roap

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakePeerConnection is a hand-rolled double for the PeerConnection
// contract, letting tests control exactly what each primitive returns and
// observe how many times it was called. It never talks to pion/webrtc.
type fakePeerConnection struct {
	mu sync.Mutex

	createOfferN  int
	createAnswerN int
	setLocalN     int
	setRemoteN    int

	// failPrimitive, if non-nil, is returned by every subsequent primitive
	// call (simulating a browser rejection).
	failPrimitive error

	// gate, if non-nil, blocks the first call to SetLocalDescription until
	// the test sends on it — used to land a restart mid-pipeline.
	gate      chan struct{}
	gateUsed  bool
	localSDP  string
}

func newFakePeerConnection() *fakePeerConnection {
	return &fakePeerConnection{}
}

func (f *fakePeerConnection) CreateOffer(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.createOfferN++
	n := f.createOfferN
	fail := f.failPrimitive
	f.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	return fmt.Sprintf("v=0\r\no=- offer-%d", n), nil
}

func (f *fakePeerConnection) CreateAnswer(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.createAnswerN++
	n := f.createAnswerN
	fail := f.failPrimitive
	f.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	return fmt.Sprintf("v=0\r\no=- answer-%d", n), nil
}

func (f *fakePeerConnection) SetLocalDescription(ctx context.Context, typ DescriptionType, sdp string) error {
	f.mu.Lock()
	f.setLocalN++
	fail := f.failPrimitive
	var wait chan struct{}
	if f.gate != nil && !f.gateUsed {
		f.gateUsed = true
		wait = f.gate
	}
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}
	if fail != nil {
		return fail
	}
	f.mu.Lock()
	f.localSDP = sdp
	f.mu.Unlock()
	return nil
}

func (f *fakePeerConnection) SetRemoteDescription(ctx context.Context, typ DescriptionType, sdp string) error {
	f.mu.Lock()
	f.setRemoteN++
	fail := f.failPrimitive
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	return nil
}

func (f *fakePeerConnection) LocalSDP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localSDP
}

func (f *fakePeerConnection) counts() (createOffer, createAnswer, setLocal, setRemote int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createOfferN, f.createAnswerN, f.setLocalN, f.setRemoteN
}

func (f *fakePeerConnection) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPrimitive = err
}

var errBrowserRejected = errors.New("fake: primitive rejected")
