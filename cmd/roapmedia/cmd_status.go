package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuuji/roapmedia/internal/config"
	"github.com/kuuji/roapmedia/internal/control"
	"github.com/kuuji/roapmedia/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show negotiation status",
	Long:  `Query the running roapmedia session and display per-peer ROAP negotiation state.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := control.FetchStatus(control.ResolveSocketPath())
	if err != nil {
		return fmt.Errorf("is roapmedia running? %w", err)
	}

	fmt.Fprintf(os.Stdout, "Peer ID:   %s\n", status.PeerID)
	fmt.Fprintf(os.Stdout, "Server:    %s\n", status.SignalingURL)
	fmt.Fprintf(os.Stdout, "Uptime:    %s\n", formatDuration(time.Duration(status.UptimeSeconds*float64(time.Second))))
	fmt.Fprintf(os.Stdout, "Peers:     %d\n", len(status.Peers))
	fmt.Println()

	if len(status.Peers) == 0 {
		fmt.Println("No peers connected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tSTATE\tSEQ\tRETRIES\tPENDING OFFER")
	for _, p := range status.Peers {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\n",
			p.PeerID, p.State, p.Seq, p.RetryCount, p.PendingLocalOffer)
	}
	w.Flush()

	return nil
}

// formatDuration formats a duration into a human-readable string like "2h15m" or "45s".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// sessionStatus converts a session's live state into a control.Status
// snapshot for the local control socket.
func sessionStatus(cfg *config.Config, sess *session.Session, startedAt time.Time) control.Status {
	peerStates := sess.Status()
	peers := make([]control.PeerState, 0, len(peerStates))
	for id, st := range peerStates {
		peers = append(peers, control.PeerState{
			PeerID:            id,
			State:             st.State.String(),
			Seq:               st.Seq,
			PendingLocalOffer: st.PendingLocalOffer,
			RetryCount:        st.RetryCount,
		})
	}
	return control.Status{
		PeerID:        cfg.Session.PeerID,
		SignalingURL:  cfg.Signaling.ServerURL,
		UptimeSeconds: time.Since(startedAt).Seconds(),
		Peers:         peers,
	}
}
