package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuuji/roapmedia/internal/control"
	"github.com/kuuji/roapmedia/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the session host",
	Long: `Start the roapmedia session: connect to the signaling server and
negotiate ROAP offer/answer exchanges with any peer that joins. Runs
until interrupted.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.New(cfg, nil, globalLogger)
	startedAt := time.Now()

	ctrl := control.NewServer(control.ResolveSocketPath(), func() control.Status {
		return sessionStatus(cfg, sess, startedAt)
	}, globalLogger)
	if err := ctrl.Start(); err != nil {
		globalLogger.Warn("control server failed to start", "error", err)
	} else {
		defer ctrl.Stop()
	}

	globalLogger.Info("starting roapmedia", "config", resolvedConfigPath())

	if err := sess.Run(ctx); err != nil {
		if ctx.Err() != nil {
			globalLogger.Info("roapmedia stopped")
			return nil
		}
		return fmt.Errorf("session error: %w", err)
	}

	return nil
}
