// Package session is the top-level orchestrator that ties together
// signaling, the ROAP negotiation core, and the underlying media peer
// connection for every remote peer a host talks to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/roapmedia/internal/config"
	"github.com/kuuji/roapmedia/internal/media"
	"github.com/kuuji/roapmedia/internal/munger"
	"github.com/kuuji/roapmedia/internal/roap"
	"github.com/kuuji/roapmedia/internal/signaling"
	"github.com/kuuji/roapmedia/internal/webrtcpc"
	"github.com/kuuji/roapmedia/pkg/roapmsg"
)

// OnRemoteTrack is called when a remote peer's PeerConnection receives a track.
type OnRemoteTrack func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// Session orchestrates a roapmedia host: it connects to a signaling hub,
// maintains one ROAP Coordinator and webrtcpc.Peer per remote peer, and
// dispatches inbound signaling messages to the right coordinator by peer
// ID.
type Session struct {
	cfg *config.Config
	log *slog.Logger

	sigClient *signaling.Client
	onTrack   OnRemoteTrack

	mu    sync.Mutex
	peers map[string]*peerSession // peerID -> state
}

// peerSession holds everything owned for one remote peer.
type peerSession struct {
	conn        *media.Connection
	coordinator *roap.Coordinator
	rtcPeer     *webrtcpc.Peer
}

// New creates a new Session with the given configuration. It does not
// connect to signaling; call Run to start the session.
func New(cfg *config.Config, onTrack OnRemoteTrack, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		log:     logger.With("component", "session"),
		onTrack: onTrack,
		peers:   make(map[string]*peerSession),
	}
}

// Run connects to the signaling server and processes peer lifecycle and
// ROAP messages until ctx is cancelled or the signaling connection is
// permanently lost.
func (s *Session) Run(ctx context.Context) error {
	s.sigClient = signaling.NewClient(signaling.ClientConfig{
		ServerURL: s.cfg.Signaling.ServerURL,
		PeerID:    s.cfg.Session.PeerID,
		Logger:    s.log,
		Reconnect: signaling.ReconnectConfig{
			Enabled: true,
		},
	})

	if err := s.sigClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to signaling server: %w", err)
	}

	s.log.Info("session started",
		"peer_id", s.cfg.Session.PeerID,
		"signaling_url", s.cfg.Signaling.ServerURL,
	)

	return s.processMessages(ctx)
}

// processMessages reads signaling envelopes and handles peer lifecycle
// events for as long as the signaling connection stays up.
func (s *Session) processMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return ctx.Err()
		case msg, ok := <-s.sigClient.Messages():
			if !ok {
				s.Shutdown()
				return errors.New("signaling connection closed")
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.log.Error("handling signaling message", "error", err)
			}
		}
	}
}

// handleMessage dispatches an inbound signaling envelope to the
// appropriate handler.
func (s *Session) handleMessage(ctx context.Context, msg signaling.Message) error {
	switch m := msg.(type) {
	case *signaling.PeersMessage:
		return s.handlePeers(ctx, m)
	case *signaling.RoapMessage:
		return s.handleRoap(ctx, m)
	case *signaling.ICECandidateMessage:
		return s.handleICECandidate(m)
	case *signaling.PeerLeftMessage:
		return s.handlePeerLeft(m)
	default:
		s.log.Debug("ignoring unknown message type", "type", msg.MessageType())
		return nil
	}
}

// handlePeers processes a peer discovery announcement. For each new peer,
// we initiate a ROAP exchange if our peer ID is lexicographically smaller
// (so only one side offers first).
func (s *Session) handlePeers(ctx context.Context, msg *signaling.PeersMessage) error {
	s.log.Info("received peer list", "count", len(msg.Peers))
	for _, p := range msg.Peers {
		s.mu.Lock()
		_, exists := s.peers[p.PeerID]
		s.mu.Unlock()
		if exists {
			continue
		}

		if _, err := s.peerFor(p.PeerID); err != nil {
			s.log.Error("creating peer", "peer_id", p.PeerID, "error", err)
			continue
		}

		if s.cfg.Session.PeerID < p.PeerID {
			if err := s.InitiateOffer(ctx, p.PeerID); err != nil {
				s.log.Error("initiating offer", "peer_id", p.PeerID, "error", err)
			}
		}
	}
	return nil
}

// handleRoap delivers an inbound ROAP message to the coordinator for its
// sender, creating one if this is the first message from a previously
// unseen peer.
func (s *Session) handleRoap(ctx context.Context, msg *signaling.RoapMessage) error {
	ps, err := s.peerFor(msg.From)
	if err != nil {
		return fmt.Errorf("creating peer for %s: %w", msg.From, err)
	}
	return ps.coordinator.RoapMessageReceived(ctx, msg.Message)
}

// handleICECandidate forwards a trickled ICE candidate to the named peer's
// PeerConnection. ROAP itself never carries ICE candidates (spec's SDP-only
// wire format), so these always arrive via their own envelope.
func (s *Session) handleICECandidate(msg *signaling.ICECandidateMessage) error {
	s.mu.Lock()
	ps, ok := s.peers[msg.From]
	s.mu.Unlock()

	if !ok {
		s.log.Debug("ICE candidate from unknown peer, ignoring", "from", msg.From)
		return nil
	}
	return ps.rtcPeer.AddICECandidate(msg.Candidate)
}

// handlePeerLeft tears down everything owned for a peer once it
// disconnects from signaling.
func (s *Session) handlePeerLeft(msg *signaling.PeerLeftMessage) error {
	s.log.Info("peer left", "peer_id", msg.PeerID)
	s.removePeer(msg.PeerID)
	return nil
}

// InitiateOffer starts (or restarts, or queues, per roap.Coordinator
// semantics) a locally initiated offer/answer exchange with peerID,
// creating the underlying peer connection first if necessary.
func (s *Session) InitiateOffer(ctx context.Context, peerID string) error {
	ps, err := s.peerFor(peerID)
	if err != nil {
		return fmt.Errorf("creating peer for %s: %w", peerID, err)
	}
	return ps.coordinator.InitiateOffer(ctx)
}

// Connection returns the media.Connection for peerID, creating the
// underlying PeerConnection and ROAP coordinator if this is the first
// time the peer is referenced. Callers use the returned Connection to
// publish or unpublish local tracks.
func (s *Session) Connection(peerID string) (*media.Connection, error) {
	ps, err := s.peerFor(peerID)
	if err != nil {
		return nil, err
	}
	return ps.conn, nil
}

// peerFor returns the existing peerSession for peerID, or creates one.
func (s *Session) peerFor(peerID string) (*peerSession, error) {
	s.mu.Lock()
	if ps, ok := s.peers[peerID]; ok {
		s.mu.Unlock()
		return ps, nil
	}
	s.mu.Unlock()

	ps, err := s.newPeerSession(peerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.peers[peerID]; ok {
		s.mu.Unlock()
		_ = ps.rtcPeer.Close()
		_ = ps.coordinator.Close()
		return existing, nil
	}
	s.peers[peerID] = ps
	s.mu.Unlock()

	return ps, nil
}

// newPeerSession builds the webrtcpc.Peer, roap.Coordinator and
// media.Connection triple for one remote peer.
func (s *Session) newPeerSession(peerID string) (*peerSession, error) {
	ice := webrtcpc.ICEConfigWithTURNSecret(
		s.cfg.ICE.STUNServers,
		s.cfg.TURN.URLs,
		s.cfg.TURN.SharedSecret,
		s.cfg.Session.PeerID,
		s.cfg.ICE.ForceRelay,
	)

	rtcPeer, err := webrtcpc.NewPeer(webrtcpc.Config{
		ICE:      ice,
		LocalID:  s.cfg.Session.PeerID,
		RemoteID: peerID,
		Logger:   s.log,

		OnICECandidate: func(candidate string) {
			if candidate == "" {
				return
			}
			if err := s.sigClient.Send(context.Background(), &signaling.ICECandidateMessage{
				From:      s.cfg.Session.PeerID,
				To:        peerID,
				Candidate: candidate,
			}); err != nil {
				s.log.Error("sending ICE candidate", "peer_id", peerID, "error", err)
			}
		},

		OnConnectionStateChange: func(state webrtc.ICEConnectionState) {
			if state == webrtc.ICEConnectionStateFailed {
				s.log.Warn("ICE connection failed, removing peer", "peer_id", peerID)
				s.removePeer(peerID)
			}
		},

		OnTrack: func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			if s.onTrack != nil {
				s.onTrack(peerID, track, receiver)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	coordinator, err := roap.NewCoordinator(roap.Config{
		PeerConnection: rtcPeer,
		Munger:         munger.Logging(s.log, roap.PassthroughMunger),
		Logger:         s.log,
		OpTimeout:      s.cfg.Session.OpTimeout,
		OnMessageToSend: func(msg roapmsg.Message) {
			if err := s.sigClient.Send(context.Background(), &signaling.RoapMessage{
				From:    s.cfg.Session.PeerID,
				To:      peerID,
				Message: msg,
			}); err != nil {
				s.log.Error("sending ROAP message", "peer_id", peerID, "error", err)
			}
		},
		OnFailure: func() {
			s.log.Warn("ROAP negotiation failed, removing peer", "peer_id", peerID)
			s.removePeer(peerID)
		},
	})
	if err != nil {
		_ = rtcPeer.Close()
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}

	conn := media.NewConnection(rtcPeer, coordinator.InitiateOffer, s.log)

	return &peerSession{conn: conn, coordinator: coordinator, rtcPeer: rtcPeer}, nil
}

// removePeer tears down the coordinator and peer connection for peerID, if
// present.
func (s *Session) removePeer(peerID string) {
	s.mu.Lock()
	ps, ok := s.peers[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.peers, peerID)
	s.mu.Unlock()

	if err := ps.coordinator.Close(); err != nil {
		s.log.Error("closing coordinator", "peer_id", peerID, "error", err)
	}
	if err := ps.rtcPeer.Close(); err != nil {
		s.log.Error("closing peer connection", "peer_id", peerID, "error", err)
	}
}

// Status returns a snapshot of every connected peer's negotiation state,
// for the local control socket.
func (s *Session) Status() map[string]roap.EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]roap.EngineState, len(s.peers))
	for id, ps := range s.peers {
		out[id] = ps.coordinator.State()
	}
	return out
}

// Shutdown tears down every peer connection and closes the signaling
// client.
func (s *Session) Shutdown() {
	s.log.Info("shutting down session")

	if s.sigClient != nil {
		if err := s.sigClient.Close(); err != nil {
			s.log.Error("closing signaling client", "error", err)
		}
	}

	s.mu.Lock()
	peerIDs := make([]string, 0, len(s.peers))
	for id := range s.peers {
		peerIDs = append(peerIDs, id)
	}
	s.mu.Unlock()

	for _, id := range peerIDs {
		s.removePeer(id)
	}
}
