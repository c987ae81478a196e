package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PhotoCounter provides the catalog-side half of a usage snapshot
type PhotoCounter interface {
	CountApprovedByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

// UsageTracker assembles the usage snapshot handed to quota evaluation:
// photo counts from the catalog, daily byte consumption from Redis.
type UsageTracker struct {
	counter PhotoCounter
	redis   *redis.Client
	now     func() time.Time
}

// NewUsageTracker creates a usage tracker. A nil Redis client degrades the
// byte dimension to zero (development without Redis).
func NewUsageTracker(counter PhotoCounter, redisClient *redis.Client) *UsageTracker {
	return &UsageTracker{counter: counter, redis: redisClient, now: time.Now}
}

// Snapshot returns current usage for an owner
func (t *UsageTracker) Snapshot(ctx context.Context, ownerID uuid.UUID) (Usage, error) {
	photos, err := t.counter.CountApprovedByOwner(ctx, ownerID)
	if err != nil {
		return Usage{}, err
	}

	var bytesToday int64
	if t.redis != nil {
		val, err := t.redis.Get(ctx, t.bytesKey(ownerID)).Int64()
		if err != nil && err != redis.Nil {
			// A cache read failure must not block ingest.
			log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Failed to read daily byte usage")
		} else {
			bytesToday = val
		}
	}

	return Usage{Photos: photos, BytesToday: bytesToday}, nil
}

// RecordBytes adds to today's byte counter for an owner. Best-effort.
func (t *UsageTracker) RecordBytes(ctx context.Context, ownerID uuid.UUID, n int64) {
	if t.redis == nil || n <= 0 {
		return
	}

	key := t.bytesKey(ownerID)
	pipe := t.redis.TxPipeline()
	pipe.IncrBy(ctx, key, n)
	pipe.ExpireAt(ctx, key, t.endOfDay())
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("Failed to record daily byte usage")
	}
}

func (t *UsageTracker) bytesKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("usage:bytes:%s:%s", ownerID, t.now().UTC().Format("2006-01-02"))
}

func (t *UsageTracker) endOfDay() time.Time {
	now := t.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
