package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	// rateLimitIPPrefix is the Redis key prefix for redirect IP limits.
	rateLimitIPPrefix = "ratelimit:redirect:"
	// rateLimitIPTTL is the TTL for IP rate limit keys.
	rateLimitIPTTL = 10 * time.Second
	// maxLocalLimiters bounds the in-process limiter table.
	maxLocalLimiters = 10000
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// IPLimiter checks the per-IP redirect budget.
type IPLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error)
}

// tokenBucketScript refills and consumes in one atomic step.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- max tokens (bucket capacity)
	local now = tonumber(ARGV[3])       -- current time in seconds
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + ((now - last_update) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckIPRateLimit checks and updates the shared budget for an IP address.
// The IP is hashed so raw addresses never land in Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{rateLimitIPPrefix + hashIP(ip)},
		ratePerSecond, burst, time.Now().Unix(), int(rateLimitIPTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Second,
		Remaining:  result[2],
	}, nil
}

// LocalLimiter is the in-process IPLimiter used when Redis is absent.
// Budgets are per instance.
type LocalLimiter struct {
	mu  sync.Mutex
	ips map[string]*rate.Limiter
}

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{ips: make(map[string]*rate.Limiter)}
}

// CheckIPRateLimit implements IPLimiter.
func (l *LocalLimiter) CheckIPRateLimit(_ context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	lim := l.limiter(ip, ratePerSecond, burst)
	now := time.Now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return &RateLimitResult{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		retry := delay.Round(time.Second)
		if retry < time.Second {
			retry = time.Second
		}
		return &RateLimitResult{Allowed: false, RetryAfter: retry}, nil
	}
	return &RateLimitResult{Allowed: true, Remaining: int64(lim.TokensAt(now))}, nil
}

func (l *LocalLimiter) limiter(ip string, ratePerSecond, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.ips[ip]
	if !ok {
		// Start over when full.
		if len(l.ips) >= maxLocalLimiters {
			l.ips = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
		l.ips[ip] = lim
	}
	return lim
}

// hashIP creates a truncated SHA256 hash of an IP address.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
