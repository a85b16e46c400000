package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/insightgraph/internal/server"
)

func serveCMD(flags *globalFlags) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if len(a.knowledge.Items()) == 0 {
				if err := a.knowledge.Initialize(ctx); err != nil {
					return fmt.Errorf("initialize knowledge: %w", err)
				}
			}

			srv := server.New(server.Deps{
				Planner:        a.planner,
				Engine:         a.engine,
				Knowledge:      a.knowledge,
				Extractor:      a.extractor,
				Snapshots:      a.snapshots,
				Metrics:        a.metrics,
				JWTSecret:      []byte(cfg.Server.JWTSecret),
				CORSOrigins:    cfg.Server.CORSOrigins,
				ChunkSize:      cfg.Extraction.ChunkSize,
				SearchTopK:     cfg.Retrieval.TopK,
				ExpansionLimit: cfg.Retrieval.ExpansionLimit,
				Logger:         newLogger("HTTP"),
			})

			if cfg.Knowledge.RefreshCron != "" {
				if a.snapshots == nil {
					return errors.New("knowledge.refresh_cron requires storage.redis")
				}
				refresher, err := server.NewRefresher(cfg.Knowledge.RefreshCron, a.snapshots, a.knowledge, newLogger("REFRESH"))
				if err != nil {
					return err
				}
				refresher.Start(ctx)
				defer refresher.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.Server.Address) }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}
