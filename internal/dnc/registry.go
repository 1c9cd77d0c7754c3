// Package dnc answers do-not-call registry lookups.
package dnc

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/emirpiksel/dialara/internal/config"
)

// Registry reports whether a number must not be dialed.
type Registry interface {
	IsListed(ctx context.Context, phoneNumber string) (bool, error)
}

// RedisRegistry checks membership in a Redis set of listed numbers.
type RedisRegistry struct {
	client     *redis.Client
	setKey     string
	failClosed bool
}

// NewRedisRegistry builds a registry backed by a Redis set.
func NewRedisRegistry(client *redis.Client, cfg config.DNCConfig) *RedisRegistry {
	return &RedisRegistry{
		client:     client,
		setKey:     cfg.SetKey,
		failClosed: cfg.FailClosed,
	}
}

// IsListed checks the registry. When the lookup itself fails, fail-closed
// registries report the number as listed so it is never dialed; fail-open
// registries surface the error and let the caller decide.
func (r *RedisRegistry) IsListed(ctx context.Context, phoneNumber string) (bool, error) {
	listed, err := r.client.SIsMember(ctx, r.setKey, phoneNumber).Result()
	if err != nil {
		if r.failClosed {
			return true, nil
		}
		return false, fmt.Errorf("dnc registry: lookup %s: %w", phoneNumber, err)
	}
	return listed, nil
}

// Add lists a number. Used by operational tooling and tests.
func (r *RedisRegistry) Add(ctx context.Context, phoneNumber string) error {
	if err := r.client.SAdd(ctx, r.setKey, phoneNumber).Err(); err != nil {
		return fmt.Errorf("dnc registry: add %s: %w", phoneNumber, err)
	}
	return nil
}
