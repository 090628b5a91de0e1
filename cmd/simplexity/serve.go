package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/internal/runtime"
	srv "github.com/mohammad-safakhou/simplexity/internal/server"
	"github.com/mohammad-safakhou/simplexity/provider"
	"github.com/mohammad-safakhou/simplexity/repository/redis_repository"
	"github.com/mohammad-safakhou/simplexity/tools/web_search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := runtime.NewLogger(cfg.General)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			tel, _, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version, Registerer: reg})
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(sctx); err != nil {
					logger.Warn("telemetry shutdown", zap.Error(err))
				}
			}()

			searcher, closeCache, err := buildSearcher(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeCache()

			llm, err := provider.New(cfg.LLM)
			if errors.Is(err, provider.ErrNotConfigured) {
				logger.Warn("llm api key missing; /api/generate and /api/suggest-questions will fail", zap.String("provider", cfg.LLM.Provider))
			} else if err != nil {
				return err
			}

			e, err := srv.New(srv.Deps{
				Server:   cfg.Server,
				Search:   cfg.Search,
				LLM:      cfg.LLM,
				Searcher: searcher,
				Provider: llm,
				Logger:   logger,
				Tracer:   tracer,
				Registry: reg,
			})
			if err != nil {
				return err
			}

			addr := cfg.Server.Address
			if serveAddr != "" {
				addr = serveAddr
			}
			return runtime.RunService(ctx, "api", e, addr, cfg.Server.ShutdownTimeout, logger)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")

	return serve
}

// buildSearcher returns a nil searcher when no key is configured so the
// server can still start and answer 500 on /api/search.
func buildSearcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (web_search.WebSearcher, func(), error) {
	noop := func() {}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), web_search.Options{
		APIKey:     cfg.Search.APIKey,
		Endpoint:   cfg.Search.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Search.Timeout},
	})
	if errors.Is(err, web_search.ErrNotConfigured) {
		logger.Warn("search api key missing; /api/search will fail", zap.String("provider", cfg.Search.Provider))
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	if cfg.Search.CacheTTL <= 0 {
		return searcher, noop, nil
	}

	client, err := redis_repository.Conn(ctx, cfg.Storage.Redis, logger)
	if err != nil {
		logger.Warn("search cache disabled", zap.Error(err))
		return searcher, noop, nil
	}
	cached := &web_search.Cached{
		Next:      searcher,
		Client:    client,
		Namespace: cfg.Storage.Redis.KeyPrefix + ":" + cfg.Search.Provider,
		TTL:       cfg.Search.CacheTTL,
		Logger:    logger.Named("search-cache"),
	}
	return cached, func() { _ = client.Close() }, nil
}
