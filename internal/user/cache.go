package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const existsKeyPrefix = "user:exists:"

// Directory answers the user lookups the chat router needs. *Service and
// *CachedDirectory implement it.
type Directory interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	ListUsernames(ctx context.Context, exclude string) ([]string, error)
}

// CachedDirectory puts a Redis cache-aside layer in front of a Directory.
// Only positive lookups are cached, so a fresh signup is never hidden by a
// stale miss. Redis failures fall through to the source.
type CachedDirectory struct {
	source Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(source Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (d *CachedDirectory) UsernameExists(ctx context.Context, username string) (bool, error) {
	key := existsKeyPrefix + username

	err := d.client.Get(ctx, key).Err()
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("user cache read failed", slog.String("username", username), slog.Any("error", err))
	}

	exists, err := d.source.UsernameExists(ctx, username)
	if err != nil || !exists {
		return exists, err
	}

	if err := d.client.Set(ctx, key, "1", d.ttl).Err(); err != nil {
		d.logger.Warn("user cache write failed", slog.String("username", username), slog.Any("error", err))
	}
	return true, nil
}

func (d *CachedDirectory) ListUsernames(ctx context.Context, exclude string) ([]string, error) {
	return d.source.ListUsernames(ctx, exclude)
}
