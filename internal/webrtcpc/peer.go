// Package webrtcpc is the sole production implementation of
// roap.PeerConnection, backed by github.com/pion/webrtc/v4. The ROAP core
// never imports this package; a session wires a *Peer into a
// roap.Coordinator through the roap.PeerConnection interface.
package webrtcpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/roapmedia/internal/roap"
)

// Config holds configuration for creating a Peer.
type Config struct {
	// ICE contains the STUN/TURN server configuration.
	ICE ICEConfig

	// API is an optional custom webrtc.API instance (e.g. with a
	// SettingEngine tuned for a specific network policy). If nil, the
	// default pion API is used.
	API *webrtc.API

	// LocalID and RemoteID identify the two ends of this connection, for
	// logging only.
	LocalID  string
	RemoteID string

	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger

	// OnICECandidate is called when a local ICE candidate is gathered. The
	// caller relays it to the remote peer out of band (ROAP itself only
	// ever carries SDP). An empty candidate string signals gathering complete.
	OnICECandidate func(candidate string)

	// OnConnectionStateChange is called whenever the ICE connection state
	// changes.
	OnConnectionStateChange func(state webrtc.ICEConnectionState)

	// OnTrack is called when a remote track arrives.
	OnTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// Peer wraps a pion RTCPeerConnection and implements roap.PeerConnection.
type Peer struct {
	cfg  Config
	log  *slog.Logger
	pc   *webrtc.PeerConnection
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPeer creates a new RTCPeerConnection with the given ICE configuration.
// It does not create an offer or answer — the owning roap.Coordinator
// drives that through the PeerConnection methods below.
func NewPeer(cfg Config) (*Peer, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("local_id", cfg.LocalID, "remote_id", cfg.RemoteID)

	rtcConfig := webrtc.Configuration{
		ICEServers: cfg.ICE.pionICEServers(),
	}
	if cfg.ICE.ForceRelay {
		rtcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
		log.Info("ICE transport policy set to relay-only (force_relay enabled)")
	}

	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if cfg.API != nil {
		pc, err = cfg.API.NewPeerConnection(rtcConfig)
	} else {
		pc, err = webrtc.NewPeerConnection(rtcConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	p := &Peer{
		cfg:  cfg,
		log:  log,
		pc:   pc,
		done: make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.log.Debug("ICE gathering complete")
			if p.cfg.OnICECandidate != nil {
				p.cfg.OnICECandidate("")
			}
			return
		}
		p.log.Debug("ICE candidate gathered", "candidate", c.String())
		if p.cfg.OnICECandidate != nil {
			p.cfg.OnICECandidate(c.ToJSON().Candidate)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.log.Info("ICE connection state changed", "state", state.String())
		if p.cfg.OnConnectionStateChange != nil {
			p.cfg.OnConnectionStateChange(state)
		}
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			p.markDone()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.log.Info("remote track received", "kind", track.Kind().String(), "id", track.ID())
		if p.cfg.OnTrack != nil {
			p.cfg.OnTrack(track, receiver)
		}
	})

	return p, nil
}

// CreateOffer implements roap.PeerConnection.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("creating SDP offer: %w", err)
	}
	p.log.Debug("SDP offer created")
	return offer.SDP, nil
}

// CreateAnswer implements roap.PeerConnection.
func (p *Peer) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating SDP answer: %w", err)
	}
	p.log.Debug("SDP answer created")
	return answer.SDP, nil
}

// SetLocalDescription implements roap.PeerConnection.
func (p *Peer) SetLocalDescription(ctx context.Context, typ roap.DescriptionType, sdp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc := webrtc.SessionDescription{Type: pionSDPType(typ), SDP: sdp}
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("setting local %s description: %w", typ, err)
	}
	return nil
}

// SetRemoteDescription implements roap.PeerConnection.
func (p *Peer) SetRemoteDescription(ctx context.Context, typ roap.DescriptionType, sdp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc := webrtc.SessionDescription{Type: pionSDPType(typ), SDP: sdp}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("setting remote %s description: %w", typ, err)
	}
	return nil
}

// LocalSDP implements roap.PeerConnection.
func (p *Peer) LocalSDP() string {
	desc := p.pc.LocalDescription()
	if desc == nil {
		return ""
	}
	return desc.SDP
}

func pionSDPType(typ roap.DescriptionType) webrtc.SDPType {
	if typ == roap.DescriptionAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}

// AddICECandidate adds a remote ICE candidate received out of band.
func (p *Peer) AddICECandidate(candidate string) error {
	if candidate == "" {
		return nil
	}
	if err := p.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
		return fmt.Errorf("adding ICE candidate: %w", err)
	}
	return nil
}

// AddTrack adds an outgoing local track. It does not renegotiate by itself;
// internal/media calls roap.Coordinator.InitiateOffer after this.
func (p *Peer) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("adding track: %w", err)
	}
	return sender, nil
}

// RemoveTrack stops sending a previously added track.
func (p *Peer) RemoveTrack(sender *webrtc.RTPSender) error {
	if err := p.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("removing track: %w", err)
	}
	return nil
}

// ConnectionState returns the current ICE connection state.
func (p *Peer) ConnectionState() webrtc.ICEConnectionState {
	return p.pc.ICEConnectionState()
}

// Done returns a channel closed once the underlying connection fails or closes.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) markDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

// Close releases the underlying peer connection.
func (p *Peer) Close() error {
	p.markDone()
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("closing peer connection: %w", err)
	}
	p.log.Info("peer connection closed")
	return nil
}
