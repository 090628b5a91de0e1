package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is the part of http.Server / echo.Echo that RunService drives.
type Server interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// RunService serves on addr until ctx is cancelled, then shuts down within
// timeout. A server that fails to start cancels the whole group.
func RunService(ctx context.Context, name string, srv Server, addr string, timeout time.Duration, logger *zap.Logger) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("service", name), zap.String("addr", addr))
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.String("service", name))
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
