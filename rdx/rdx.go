// Package rdx holds the Redis connection and the token revocation cache
// built on it.
package rdx

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Default().WithPrefix("rdx").Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

const revokedPrefix = "revoked:"

// Denylist remembers revoked token ids until the token would have expired
// anyway. It is a shortcut in front of the store, never a replacement.
type Denylist struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewDenylist(client redis.UniversalClient) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

// MarkRevoked records jti as revoked until the given time. Past expiries are
// ignored since the token is already unusable.
func (d *Denylist) MarkRevoked(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, revokedPrefix+jti, 1, ttl).Err()
}

// IsRevoked reports whether jti was marked revoked.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
