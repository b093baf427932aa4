package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kuuji/roapmedia/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new configuration file",
	Long: `Interactive setup wizard: asks for this host's peer ID, the signaling
server URL, and optional TURN credentials, then writes a config file.

If a config file already exists at the target path, you will be
prompted before overwriting it.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgPath := resolvedConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		var overwrite bool
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file already exists at %s. Overwrite?", cfgPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		).WithTheme(customHuhTheme())
		if err := confirm.Run(); err != nil {
			return fmt.Errorf("cancelled")
		}
		if !overwrite {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	hostname, _ := os.Hostname()
	var peerID, rawURL, turnSecret string
	peerID = hostname

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Peer ID").
				Description("This host's unique identifier on the signaling hub.").
				Value(&peerID).
				Placeholder(hostname),
			huh.NewInput().
				Title("Signaling server URL").
				Description("e.g. ws://localhost:8080/connect").
				Value(&rawURL),
			huh.NewInput().
				Title("TURN shared secret (optional)").
				Description("Leave blank to rely on STUN-only connectivity.").
				Value(&turnSecret),
		),
	).WithTheme(customHuhTheme())

	if err := form.Run(); err != nil {
		return fmt.Errorf("cancelled")
	}

	if peerID == "" {
		peerID = hostname
	}
	if rawURL == "" {
		return fmt.Errorf("signaling server URL is required")
	}
	serverURL, err := normalizeServerURL(rawURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	cfg.Session.PeerID = peerID
	cfg.Signaling.ServerURL = serverURL
	cfg.TURN.SharedSecret = turnSecret

	if err := config.SaveConfig(cfgPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\nConfig written to: %s\n", cfgPath)
	fmt.Fprintf(os.Stderr, "Run 'roapmedia run' to start the session.\n")

	return nil
}
