package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strefethen/harmony-go/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, the player channel and the playback controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("server init error: %w", err)
			}

			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				logger.WithField("addr", cfg.Addr()).Info("harmony listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-serveErr:
				if err != nil {
					_ = shutdownHandler(context.Background())
					return fmt.Errorf("server error: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var errs []error
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
			if err := shutdownHandler(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	}
}
