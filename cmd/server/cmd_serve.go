package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pragrisk/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			a, err := newApp(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			// the memory index starts empty and has to be filled from the store
			if reindex || cfg.Search.Backend == "memory" {
				if err := a.reindex(cmd.Context()); err != nil {
					log.Warn().Err(err).Msg("initial reindex incomplete")
				}
			}

			gin.SetMode(gin.ReleaseMode)
			r := server.NewRouter(a.services, a.db, a.metrics, log)

			httpSrv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", httpSrv.Addr).Msg("starting server")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("serve: HTTP server: %w", err)
				}
				close(errCh)
			}()

			select {
			case <-cmd.Context().Done():
				log.Info().Msg("shutting down")
			case err := <-errCh:
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the search index from the store before serving")
	return cmd
}
