package web_search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheStore is the subset of the redis client used by Cached.
type CacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cached memoises provider replies in Redis for a fixed TTL. Cache failures
// are logged and fall through to the provider.
type Cached struct {
	Next      WebSearcher
	Client    CacheStore
	Namespace string
	TTL       time.Duration
	Logger    *zap.Logger
}

func (c *Cached) key(q string, k int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q)) + "|" + strconv.Itoa(k)))
	ns := c.Namespace
	if ns == "" {
		ns = "simplexity"
	}
	return ns + ":search:" + hex.EncodeToString(sum[:])
}

func (c *Cached) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cached) Discover(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	key := c.key(q, k)
	val, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []models.SearchResult
		if jerr := json.Unmarshal(val, &out); jerr == nil {
			return out, nil
		}
		c.logger().Warn("dropping corrupt search cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger().Warn("search cache read failed", zap.Error(err))
	}

	out, err := c.Next.Discover(ctx, q, k)
	if err != nil {
		return nil, err
	}
	if data, jerr := json.Marshal(out); jerr == nil {
		if serr := c.Client.Set(ctx, key, data, c.TTL).Err(); serr != nil {
			c.logger().Warn("search cache write failed", zap.Error(serr))
		}
	}
	return out, nil
}
