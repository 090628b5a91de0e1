package runtime

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/internal/store"
	"github.com/mohammad-safakhou/simplexity/repository/redis_repository"
	"go.uber.org/zap"
)

// Storage is the opened conversation backend plus whatever must be closed on
// shutdown.
type Storage struct {
	Persistence store.Persistence
	closers     []func() error
}

func (s *Storage) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenStorage connects the backend named by cfg.Backend.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Storage, error) {
	s := &Storage{}
	switch cfg.Backend {
	case "memory":
		s.Persistence = store.NewMemory()
	case "redis":
		client, err := redis_repository.Conn(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr(), err)
		}
		s.closers = append(s.closers, client.Close)
		s.Persistence = redis_repository.NewConversations(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	case "postgres":
		st, err := store.NewWithDSN(ctx, cfg.Postgres.DSN())
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		s.Persistence = st
		s.closers = append(s.closers, st.Close)
	default:
		_ = s.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	logger.Info("conversation storage ready", zap.String("backend", cfg.Backend))
	return s, nil
}
