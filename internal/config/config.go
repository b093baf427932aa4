// Package config loads and saves the TOML configuration for a roapmedia
// session host, in the manner of the teacher's internal/config package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultSTUNServers are the public STUN servers used when none are configured.
var DefaultSTUNServers = []string{
	"stun:stun.cloudflare.com:3478",
	"stun:stun.l.google.com:19302",
}

// DefaultConfigDirName is the name of the config directory under the user's
// XDG config home (or ~/.config if unset).
const DefaultConfigDirName = "roapmedia"

// Config is the top-level configuration for a roapmedia session host.
// It is persisted as a TOML file at DefaultConfigPath().
type Config struct {
	Session   SessionConfig   `toml:"session"`
	Signaling SignalingConfig `toml:"signaling"`
	ICE       ICEConfig       `toml:"ice"`
	TURN      TURNConfig      `toml:"turn"`
	Log       LogConfig       `toml:"log"`
}

// SessionConfig identifies this host and tunes the negotiation engine.
type SessionConfig struct {
	// PeerID is this host's unique identifier on the signaling hub.
	PeerID string `toml:"peer_id"`

	// OpTimeout bounds each CreateOffer/CreateAnswer/SetLocalDescription/
	// SetRemoteDescription call the coordinator makes against the
	// PeerConnection. Zero uses the coordinator's default of 10s.
	OpTimeout time.Duration `toml:"op_timeout,omitempty"`
}

// SignalingConfig identifies the signaling hub this host connects to.
type SignalingConfig struct {
	// ServerURL is the WebSocket URL of the signaling hub (e.g.
	// "ws://localhost:8080/connect").
	ServerURL string `toml:"server_url"`
}

// ICEConfig lists the STUN servers and relay policy used for ICE gathering.
type ICEConfig struct {
	// STUNServers is a list of STUN server URIs.
	STUNServers []string `toml:"stun_servers"`

	// ForceRelay restricts ICE candidate gathering to TURN relay candidates
	// only. Useful for testing the TURN path or on networks that block
	// direct connectivity.
	ForceRelay bool `toml:"force_relay,omitempty"`
}

// TURNConfig configures a TURN REST API credential source (see
// internal/webrtcpc/turn.go), plus the TURN server URLs themselves.
type TURNConfig struct {
	// URLs is a list of TURN server URIs (e.g. "turn:turn.example.com:3478").
	URLs []string `toml:"urls,omitempty"`

	// SharedSecret is the long-term shared secret this host and the TURN
	// server both hold, used to derive time-limited credentials.
	SharedSecret string `toml:"shared_secret,omitempty"`

	// Realm identifies the TURN realm these credentials are scoped to. It is
	// stored in the config file only: the ICE/TURN server list built for a
	// peer connection does not include it.
	Realm string `toml:"realm,omitempty"`
}

// LogConfig records the desired structured-logger verbosity. The roapmedia
// CLI does not read it; its log level is set by the --verbose flag.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string `toml:"level,omitempty"`
}

// DefaultConfig returns a Config populated with sensible defaults. Host-
// specific fields (peer ID, signaling URL, TURN secret) are left empty and
// must be filled in by the user or by "roapmedia init".
func DefaultConfig() *Config {
	return &Config{
		ICE: ICEConfig{
			STUNServers: append([]string(nil), DefaultSTUNServers...),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default path for the roapmedia config file,
// under the user's XDG config directory.
func DefaultConfigPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, DefaultConfigDirName, "config.toml"), nil
}

// LoadConfig reads and decodes a Config from path, applying defaults for
// any fields left unset.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// SaveConfig writes cfg as TOML to path, creating parent directories as
// needed. The file is written 0600 since it may carry a TURN shared secret.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding TOML: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// ParseTOML decodes a Config from a TOML string.
func ParseTOML(s string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(s, cfg); err != nil {
		return nil, fmt.Errorf("decoding TOML config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// MarshalTOML encodes a Config to a TOML string.
func MarshalTOML(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding TOML config: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// applyDefaults fills in default values for optional fields that are
// zero-valued after TOML decoding.
func applyDefaults(cfg *Config) {
	if len(cfg.ICE.STUNServers) == 0 {
		cfg.ICE.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
