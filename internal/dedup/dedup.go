// Package dedup remembers provider webhook event ids in Redis so a repeated
// delivery can be acknowledged without touching the database.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store claims event ids with SET NX and a TTL.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, prefix: "webhook:event:", ttl: ttl}
}

// NewFromAddr connects to addr. The connection is lazy, so an unreachable
// server only surfaces on the first Claim.
func NewFromAddr(addr string, ttl time.Duration) *Store {
	return New(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

// Claim reports true when eventID was not seen before within the TTL.
func (s *Store) Claim(ctx context.Context, eventID string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

// Release forgets eventID so the provider's retry is processed again.
func (s *Store) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, s.prefix+eventID).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
