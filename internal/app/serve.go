package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/api"
	"github.com/sdis/opsdash/internal/store"
	"github.com/sdis/opsdash/internal/sync"
)

// shutdownTimeout bounds the HTTP drain and the last scan on exit.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container()
		if err != nil {
			return err
		}
		return c.Invoke(serve)
	},
}

func serve(poller *sync.Poller, server *api.Server, s store.Store, logger *zap.Logger) error {
	defer func() { _ = logger.Sync() }()
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		poller.Stop()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	poller.Stop()
	return nil
}
