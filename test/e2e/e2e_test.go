// Package e2e exercises the full roapmedia stack end to end: the
// signaling hub, the ROAP negotiation core, the pion-backed peer
// connections, and the media facade, all wired together exactly as
// "roapmedia run" wires them. Unlike a unit test for any one of those
// packages, these tests never call into internal/roap or
// internal/webrtcpc directly — they drive internal/session.Session (and the
// media.Connection it hands out), the same surface the CLI commands use,
// and use internal/roap only for its State constants.
//
// Run with: go test -timeout 120s ./test/e2e/
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/roapmedia/internal/config"
	"github.com/kuuji/roapmedia/internal/media"
	"github.com/kuuji/roapmedia/internal/roap"
	"github.com/kuuji/roapmedia/internal/session"
	"github.com/kuuji/roapmedia/internal/signaling"
)

// peer describes one roapmedia host in the test topology.
type peer struct {
	id   string
	sess *session.Session
}

// newHub starts a signaling hub behind an httptest.Server and returns its
// ws:// URL.
func newHub(t *testing.T) string {
	t.Helper()
	hub := signaling.NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startPeer builds and runs a Session for peerID against hubURL.
func startPeer(t *testing.T, ctx context.Context, hubURL, peerID string) *peer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Session.PeerID = peerID
	cfg.Signaling.ServerURL = hubURL

	sess := session.New(cfg, nil, nil)
	t.Cleanup(sess.Shutdown)

	go sess.Run(ctx)

	return &peer{id: peerID, sess: sess}
}

// waitForStable polls until p reports other in roap.StateIdle with at
// least one completed exchange (Seq > 0), or fails the test at timeout.
func waitForStable(t *testing.T, p *peer, other string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		st, ok := p.sess.Status()[other]
		if ok && st.State == roap.StateIdle && st.Seq > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("%s: timed out waiting for stable negotiation with %s (state=%+v ok=%v)", p.id, other, st, ok)
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// waitForAbsent polls until p no longer has any state for other.
func waitForAbsent(t *testing.T, p *peer, other string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if _, ok := p.sess.Status()[other]; !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %s to be forgotten", p.id, other)
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// TestE2E_ThreePeerMesh verifies that three roapmedia hosts joining the
// same signaling hub each negotiate a stable ROAP session with the other
// two, entirely over loopback host ICE candidates.
func TestE2E_ThreePeerMesh(t *testing.T) {
	hubURL := newHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ids := []string{"alpha", "bravo", "charlie"}
	peers := make(map[string]*peer, len(ids))
	for _, id := range ids {
		peers[id] = startPeer(t, ctx, hubURL, id)
	}

	for _, p := range peers {
		for _, id := range ids {
			if id == p.id {
				continue
			}
			waitForStable(t, p, id, 20*time.Second)
		}
	}
}

// TestE2E_PeerDeparture verifies that when one peer in a three-way mesh
// shuts down, the remaining two keep their stable session with each
// other, and that the departed peer is dropped from their status once
// signaling reports it gone.
func TestE2E_PeerDeparture(t *testing.T) {
	hubURL := newHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	alpha := startPeer(t, ctx, hubURL, "alpha")
	bravo := startPeer(t, ctx, hubURL, "bravo")
	charlie := startPeer(t, ctx, hubURL, "charlie")

	for _, p := range []*peer{alpha, bravo, charlie} {
		for _, other := range []string{"alpha", "bravo", "charlie"} {
			if other == p.id {
				continue
			}
			waitForStable(t, p, other, 20*time.Second)
		}
	}

	charlie.sess.Shutdown()

	waitForAbsent(t, alpha, "charlie", 10*time.Second)
	waitForAbsent(t, bravo, "charlie", 10*time.Second)

	// Alpha and bravo's own session with each other must be unaffected by
	// charlie's departure.
	waitForStable(t, alpha, "bravo", 5*time.Second)
	waitForStable(t, bravo, "alpha", 5*time.Second)
}

// TestE2E_PublishTrackTriggersRenegotiation verifies that publishing a
// local track after the initial negotiation drives a second ROAP
// exchange (Seq advances) rather than leaving the session on its
// original offer/answer.
func TestE2E_PublishTrackTriggersRenegotiation(t *testing.T) {
	hubURL := newHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	alpha := startPeer(t, ctx, hubURL, "alpha")
	bravo := startPeer(t, ctx, hubURL, "bravo")

	waitForStable(t, alpha, "bravo", 20*time.Second)
	waitForStable(t, bravo, "alpha", 20*time.Second)

	initialSeq := alpha.sess.Status()["bravo"].Seq

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "alpha",
	)
	if err != nil {
		t.Fatalf("creating local track: %v", err)
	}

	conn, err := alpha.sess.Connection("bravo")
	if err != nil {
		t.Fatalf("getting connection to bravo: %v", err)
	}
	if err := conn.PublishTrack(ctx, media.KindVideo, track); err != nil {
		t.Fatalf("publishing track: %v", err)
	}

	deadline := time.After(20 * time.Second)
	for {
		st, ok := alpha.sess.Status()["bravo"]
		if ok && st.State == roap.StateIdle && st.Seq > initialSeq {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for renegotiation after publishing a track; initial seq=%d, last seen=%+v", initialSeq, st)
		case <-time.After(25 * time.Millisecond):
		}
	}
}
