// Package runlock guards each campaign's dialing run with a Redis lease so
// that at most one runner process drives a campaign at a time.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Lock grants per-campaign run leases. A lease is held by the token that
// acquired it and expires on its own if the holder dies, so a crashed runner
// never wedges the campaign.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock constructs a run lock with the given lease TTL.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire tries to take the campaign's run lease for token. It reports false
// when another holder owns the lease.
func (l *Lock) Acquire(ctx context.Context, campaignID uuid.UUID, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(campaignID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("runlock acquire: %w", err)
	}
	return ok, nil
}

// Refresh extends the lease while the holder is still driving the run.
func (l *Lock) Refresh(ctx context.Context, campaignID uuid.UUID, token string) error {
	script := redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
	res, err := script.Run(ctx, l.client, []string{l.key(campaignID)}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("runlock refresh: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("runlock refresh: lease lost for campaign %s", campaignID)
	}
	return nil
}

// Release drops the lease if token still holds it. Releasing a lease owned
// by someone else is a no-op.
func (l *Lock) Release(ctx context.Context, campaignID uuid.UUID, token string) error {
	script := redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
	if _, err := script.Run(ctx, l.client, []string{l.key(campaignID)}, token).Int(); err != nil {
		return fmt.Errorf("runlock release: %w", err)
	}
	return nil
}

func (l *Lock) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("dialara:campaign:%s:runlock", campaignID)
}
