package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultDedupTTL is how long an applied event's key shields against
// provider redelivery.
const DefaultDedupTTL = 24 * time.Hour

// EventDeduplicator keeps a Redis record of webhook bodies already applied,
// keyed by body hash, so redelivered events are applied exactly once across
// all instances.
type EventDeduplicator struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewEventDeduplicator creates a Redis-backed deduplicator.
func NewEventDeduplicator(redisClient *redis.Client, ttl time.Duration) *EventDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &EventDeduplicator{
		redis:  redisClient,
		prefix: "webhook:event",
		ttl:    ttl,
	}
}

func (d *EventDeduplicator) key(body []byte) string {
	digest := sha256.Sum256(body)
	return fmt.Sprintf("%s:%s", d.prefix, hex.EncodeToString(digest[:]))
}

// Seen records the event body and reports whether it had been recorded
// before. SET NX makes the claim atomic: the first caller wins, every
// redelivery within the TTL observes true. A caller whose apply fails must
// Release the claim so the provider's retry is not dropped.
func (d *EventDeduplicator) Seen(ctx context.Context, body []byte) (bool, error) {
	claimed, err := d.redis.SetNX(ctx, d.key(body), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return !claimed, nil
}

// Release gives back a claim taken by Seen, re-opening the key for the next
// delivery of the same body.
func (d *EventDeduplicator) Release(ctx context.Context, body []byte) error {
	if err := d.redis.Del(ctx, d.key(body)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}
