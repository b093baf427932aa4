package webrtcpc

import "github.com/pion/webrtc/v4"

// ICEConfig describes the STUN/TURN servers a Peer's ICE agent should use.
type ICEConfig struct {
	// STUNServers are STUN URLs (e.g. "stun:stun.l.google.com:19302").
	STUNServers []string

	// TURNURLs are TURN server URLs (e.g. "turn:turn.example.com:3478").
	TURNURLs []string
	// TURNUsername/TURNPassword authenticate against TURNURLs. Use
	// GenerateTURNCredentials (or ICEConfigWithTURNSecret) to derive
	// time-limited values from a shared secret rather than a static password.
	TURNUsername string
	TURNPassword string

	// ForceRelay, when true, restricts ICE candidate gathering to relay
	// (TURN) candidates only — useful for testing NAT traversal failure
	// paths or for networks that block direct/srflx connectivity.
	ForceRelay bool
}

func (c ICEConfig) pionICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNURLs,
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		})
	}
	return servers
}
