package main

import (
	"context"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/internal/conversation"
	"github.com/mohammad-safakhou/simplexity/internal/runtime"
	"go.uber.org/zap"
)

// app bundles what the conversation commands share.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	storage *runtime.Storage
	repo    *conversation.Repository
}

func openApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := runtime.NewLogger(cfg.General)
	if err != nil {
		return nil, err
	}
	st, err := runtime.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, storage: st, repo: conversation.NewRepository(st.Persistence)}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}
