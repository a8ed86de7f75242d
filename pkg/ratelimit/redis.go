package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKey is the Redis key holding the last reserved dispatch slot.
const DefaultRedisKey = "fetch:rate_limit:last_dispatch"

// reserveScript atomically reserves the next dispatch slot.
// KEYS[1]: slot key. ARGV: now (unix ms), interval (ms), minimum key TTL (ms).
// Returns the reserved slot in unix ms. The key outlives the reserved slot by
// two intervals, so queued reservations are never forgotten.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local minTTL = tonumber(ARGV[3])
local slot = now
local last = redis.call('GET', KEYS[1])
if last then
	local nextSlot = tonumber(last) + interval
	if nextSlot > slot then
		slot = nextSlot
	end
end
local ttl = slot - now + 2 * interval
if ttl < minTTL then
	ttl = minTTL
end
redis.call('SET', KEYS[1], string.format('%d', slot), 'PX', string.format('%d', ttl))
return slot
`)

// minSlotTTL is the floor on the slot key's lifetime.
const minSlotTTL = time.Second

// RedisSpacer enforces the minimum dispatch spacing across every process
// sharing the same Redis key.
type RedisSpacer struct {
	redis    *redis.Client
	key      string
	interval time.Duration
	logger   zerolog.Logger
}

// NewRedisSpacer creates a Redis-backed spacer.
func NewRedisSpacer(redisClient *redis.Client, key string, interval time.Duration, logger zerolog.Logger) *RedisSpacer {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSpacer{
		redis:    redisClient,
		key:      key,
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured minimum spacing.
func (s *RedisSpacer) Interval() time.Duration {
	return s.interval
}

// Wait reserves the next shared slot and sleeps until it arrives.
func (s *RedisSpacer) Wait(ctx context.Context) error {
	if s.interval <= 0 {
		return ctx.Err()
	}

	start := time.Now()
	defer func() {
		dispatchWaitSeconds.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	}()

	intervalMs := s.interval.Milliseconds()
	if intervalMs < 1 {
		intervalMs = 1
	}
	slotMs, err := s.reserve(ctx, start.UnixMilli(), intervalMs)
	if err != nil {
		return fmt.Errorf("reserve dispatch slot: %w", err)
	}

	wait := time.Until(time.UnixMilli(slotMs))
	if wait <= 0 {
		return nil
	}

	s.logger.Debug().
		Str("key", s.key).
		Dur("wait", wait).
		Msg("Waiting for shared dispatch slot")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatch slot: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// reserve claims the first free slot at or after nowMs.
func (s *RedisSpacer) reserve(ctx context.Context, nowMs, intervalMs int64) (int64, error) {
	return reserveScript.Run(ctx, s.redis, []string{s.key}, nowMs, intervalMs, minSlotTTL.Milliseconds()).Int64()
}
