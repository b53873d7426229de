package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/access"
	"github.com/systemshift/graphrest/internal/server/api"
	"github.com/systemshift/graphrest/internal/server/config"
	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/logging"
	"github.com/systemshift/graphrest/internal/server/metrics"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/resource"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides GRAPHREST_ADDR")
	return cmd
}

// app is a wired server and what must be closed with it.
type app struct {
	server *http.Server
	store  graph.Store
	subMgr *subscriptions.Manager
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg := schema.NewRegistry()
	if cfg.SchemaFile != "" {
		var err error
		if reg, err = schema.LoadFile(cfg.SchemaFile); err != nil {
			return nil, err
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("graph store opened", zap.String("backend", cfg.Backend))

	collector := metrics.NewCollector(cfg.MetricsNamespace)

	notifier := subscriptions.NewNotifier(&http.Client{Timeout: cfg.Webhooks.Timeout}, cfg.Webhooks.Attempts, cfg.Webhooks.Backoff, logger)
	subMgr := subscriptions.NewManager(notifier, cfg.Webhooks.BufferSize, collector, logger)
	for _, sub := range cfg.Subscriptions {
		if _, err := subMgr.Register(sub); err != nil {
			store.Close(ctx)
			return nil, fmt.Errorf("configured subscription: %w", err)
		}
	}

	exec := mutation.NewExecutor(store, reg,
		mutation.WithLogger(logger),
		mutation.WithMetrics(collector),
		mutation.WithEventSink(subMgr),
	)
	grants := access.NewResolver(exec, access.DefaultPolicy(cfg.DefaultPolicy), logger, collector)
	service := resource.NewService(reg, exec, grants,
		resource.WithBaseURI(cfg.BaseURI),
		resource.WithIDProperty(cfg.IDProperty),
		resource.WithPageSize(cfg.DefaultPageSize, cfg.MaxPageSize),
	)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.New(service, reg, subMgr, collector, logger).Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &app{server: srv, store: store, subMgr: subMgr}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (graph.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return graph.NewSQLite(ctx, cfg.SQLitePath)
	case "neo4j":
		return graph.NewNeo4j(ctx, graph.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	}
	return graph.NewMemoryStore(), nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.subMgr.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting graphrest server", zap.String("addr", cfg.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	a.subMgr.Stop(shutdownCtx)
	if err := a.store.Close(shutdownCtx); err != nil {
		logger.Error("closing graph store", zap.Error(err))
	}

	logger.Info("server exited")
	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}
