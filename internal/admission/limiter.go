// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/authgate/pkg/uuidv7"
)

// # Limiter

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed bool
	// Count is the number of hits inside the window, including this one when allowed.
	Count int
	// RetryAfter is set when denied: time until the oldest hit leaves the window.
	RetryAfter time.Duration
}

// Limiter enforces at most limit hits per key inside a sliding window.
//
// A denied call does not record a hit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// # Redis Backend

// slidingWindowScript keeps one sorted-set member per accepted hit, scored by
// its timestamp in milliseconds. Pruning, counting and recording run as one
// atomic step on the server.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
	local retry = window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, count, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RedisLimiter shares rate-limit state across instances through Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter whose keys are namespaced under prefix.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow runs the sliding-window script for key.
func (limiter *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	values, err := slidingWindowScript.Run(ctx, limiter.client,
		[]string{limiter.prefix + key},
		limiter.now().UnixMilli(),
		window.Milliseconds(),
		limit,
		uuidv7.New(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("admission_redis_limiter_failed: %w", err)
	}
	if len(values) != 3 {
		return Result{}, fmt.Errorf("admission_redis_limiter_failed: unexpected reply %v", values)
	}

	return Result{
		Allowed:    values[0] == 1,
		Count:      int(values[1]),
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// # Memory Backend

type hitLog struct {
	hits   []time.Time
	window time.Duration
}

// MemoryLimiter keeps sliding-window logs in process. It is used when no
// Redis is configured and is only correct for a single instance.
type MemoryLimiter struct {
	mu   sync.Mutex
	logs map[string]*hitLog
	now  func() time.Time
}

// NewMemoryLimiter creates a limiter and starts a goroutine that drops idle
// keys every sweepInterval until ctx is cancelled.
func NewMemoryLimiter(ctx context.Context, sweepInterval time.Duration) *MemoryLimiter {
	limiter := newMemoryLimiter(time.Now)
	go limiter.sweep(ctx, sweepInterval)
	return limiter
}

func newMemoryLimiter(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{logs: make(map[string]*hitLog), now: now}
}

// Allow prunes expired hits for key and records a new one if under limit.
func (limiter *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.now()
	log, ok := limiter.logs[key]
	if !ok {
		log = &hitLog{}
		limiter.logs[key] = log
	}
	log.window = window
	log.prune(now)

	if len(log.hits) >= limit {
		return Result{
			Count:      len(log.hits),
			RetryAfter: log.hits[0].Add(window).Sub(now),
		}, nil
	}

	log.hits = append(log.hits, now)
	return Result{Allowed: true, Count: len(log.hits)}, nil
}

// prune drops hits at or before now-window.
func (log *hitLog) prune(now time.Time) {
	cutoff := now.Add(-log.window)
	kept := 0
	for kept < len(log.hits) && !log.hits[kept].After(cutoff) {
		kept++
	}
	log.hits = log.hits[kept:]
}

func (limiter *MemoryLimiter) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			limiter.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep removes keys with no hits left in their window.
func (limiter *MemoryLimiter) Sweep() {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.now()
	for key, log := range limiter.logs {
		log.prune(now)
		if len(log.hits) == 0 {
			delete(limiter.logs, key)
		}
	}
}

// Keys returns the number of tracked keys.
func (limiter *MemoryLimiter) Keys() int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return len(limiter.logs)
}
