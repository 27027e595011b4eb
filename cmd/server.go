package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitkit/habits/internal/config"
	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/server"
	"github.com/habitkit/habits/internal/storage/backend"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg, nil)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

// runServer serves until ctx is cancelled. ready, when non-nil, receives the
// bound address once the listener is up.
func runServer(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	store, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	srv, err := server.New(cfg, store)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	logger.Info("Server listening", "addr", ln.Addr().String(), "storage", cfg.Storage.Driver)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
