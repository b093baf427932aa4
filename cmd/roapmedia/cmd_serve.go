package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuuji/roapmedia/internal/signaling"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local signaling hub",
	Long: `Run a local WebSocket signaling hub for development: peers connect with
'roapmedia run' pointed at ws://<addr>/connect and exchange ROAP
messages and ICE candidates through it.

This replaces a cloud signaling backend for local testing; it is not
meant to be exposed to the public internet.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := signaling.NewHub(globalLogger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/connect", hub)

	srv := &http.Server{Addr: serveAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		globalLogger.Info("signaling hub listening", "addr", serveAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		globalLogger.Info("shutting down signaling hub")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
