package main

import (
	"fmt"
	"net/url"
	"os"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Print a pairing QR code for a second peer",
	Long: `Print this host's signaling server URL and peer ID, plus a QR code of
a pairing link encoding both, so a second device can scan it and run
'roapmedia init' pointed at the same signaling hub.

This command reads the signaling server URL from your config file; it
does not talk to the network.`,
	RunE: runInvite,
}

func runInvite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Signaling.ServerURL == "" {
		return fmt.Errorf("no signaling server configured — run 'roapmedia init' first")
	}

	u, err := url.Parse(cfg.Signaling.ServerURL)
	if err != nil {
		return fmt.Errorf("parsing server URL: %w", err)
	}

	pairURL := fmt.Sprintf("roapmedia://join?server=%s&peer=%s", url.QueryEscape(u.String()), url.QueryEscape(cfg.Session.PeerID))

	fmt.Fprintf(os.Stderr, "\nShare this with the peer you want to connect to:\n\n")
	fmt.Fprintf(os.Stderr, "  Server:  %s\n", cfg.Signaling.ServerURL)
	fmt.Fprintf(os.Stderr, "  Peer ID: %s\n\n", cfg.Session.PeerID)

	qr, err := qrcode.New(pairURL, qrcode.Medium)
	if err == nil {
		fmt.Fprint(os.Stderr, qr.ToSmallString(false))
	}

	fmt.Fprintf(os.Stderr, "\nOn the other device, run 'roapmedia init' with the server URL above,\nthen 'roapmedia run'.\n")

	return nil
}
