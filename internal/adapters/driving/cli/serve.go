package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/custodia-labs/docqa/internal/adapters/driving/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API server.

Routes:
  POST /api/upload              upload a PDF (multipart file or file_url)
  POST /api/chat                ask a question about a session
  POST /api/reset               delete a session
  POST /api/delete-embeddings   delete a session or sessions idle since a time
  GET  /api/sessions/{id}       describe a session
  GET  /health                  liveness
  GET  /metrics                 Prometheus metrics

Idle sessions are expired in the background when [expiry] is enabled.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if ingestService == nil || queryService == nil || sessionService == nil {
		return fmt.Errorf("serve: %w", errNotConfigured)
	}

	cfg := appConfig.Server
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Ingest:  ingestService,
		Query:   queryService,
		Session: sessionService,
	}, httpapi.Config{
		Addr:           cfg.Addr,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		ReadTimeout:    cfg.ReadTimeout.Std(),
		WriteTimeout:   cfg.WriteTimeout.Std(),
		Metrics:        metricsHandler,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	if sweeper != nil {
		g.Go(func() error {
			err := sweeper.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	cmd.Printf("docqa listening on %s\n", cfg.Addr)
	return g.Wait()
}
