package main

import (
	"context"
	"net/http"

	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/messaging"
	"github.com/matst80/slask-archive/pkg/seo"
	"github.com/matst80/slask-archive/pkg/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archive http server",
	Long: `Run the archive http server.

When rabbit.url is set, visibility changes are published to the other nodes
and their changes invalidate the local options cache.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if cfg.Rabbit.Url != "" {
		bus, err := a.connectBus()
		if err != nil {
			logger.Error("rabbitmq unavailable, changes stay local", zap.Error(err))
		} else {
			err = bus.ListenVisibilityChanges(ctx, func(ctx context.Context, batch messaging.VisibilityChangeBatch) error {
				logger.Debug("remote visibility changes", zap.String("origin", batch.Origin), zap.Int("changes", len(batch.Changes)))
				return a.cache.Invalidate(ctx)
			})
			if err != nil {
				logger.Error("failed to listen for visibility changes", zap.Error(err))
			}
		}
	}

	ws := &server.WebServer{
		Registry: a.registry,
		Engine:   a.engine,
		Seo: seo.NewHelper(seo.Config{
			TitleTerms:         cfg.Seo.TitleTerms,
			DescriptionTerms:   cfg.Seo.DescriptionTerms,
			ActiveIntegrations: cfg.Seo.Integrations,
		}),
		Auth:               server.NewAdminAuth(cfg.Admin.Secret),
		DefaultContentType: cfg.ContentType,
		Debug:              cfg.Debug,
		Logger:             logger,
	}
	mux := http.NewServeMux()
	ws.Handle(mux)

	srv := common.NewServerWithTimeouts(&http.Server{Addr: cfg.Listen, Handler: mux}, cfg.Timeouts)
	hooks := a.hooks
	a.hooks = nil
	return common.RunServerWithShutdown(ctx, logger, srv, "archive", cfg.Timeouts, hooks...)
}
