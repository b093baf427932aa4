package webrtcpc

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultCredentialLifetime is the default validity period for generated
// TURN credentials.
const DefaultCredentialLifetime = 1 * time.Hour

// GenerateTURNCredentials derives time-limited TURN REST API credentials
// from a shared secret, following the convention coturn and pion/ice both
// support:
//
//	username = "<unix_expiry>:<peerID>"
//	password = base64(HMAC-SHA1(secret, username))
func GenerateTURNCredentials(secret, peerID string, lifetime time.Duration) (username, password string) {
	if lifetime == 0 {
		lifetime = DefaultCredentialLifetime
	}
	expiry := time.Now().Add(lifetime).Unix()
	username = fmt.Sprintf("%d:%s", expiry, peerID)
	password = computeTURNPassword(secret, username)
	return username, password
}

func computeTURNPassword(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ICEConfigWithTURNSecret builds an ICEConfig with freshly derived TURN
// credentials from a shared secret, for hosts that configure TURN via
// config.TURNConfig rather than a static username/password.
func ICEConfigWithTURNSecret(stunServers, turnURLs []string, sharedSecret, peerID string, forceRelay bool) ICEConfig {
	cfg := ICEConfig{
		STUNServers: stunServers,
		TURNURLs:    turnURLs,
		ForceRelay:  forceRelay,
	}
	if sharedSecret != "" && len(turnURLs) > 0 {
		cfg.TURNUsername, cfg.TURNPassword = GenerateTURNCredentials(sharedSecret, peerID, 0)
	}
	return cfg
}
