package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/set-night/acueducto/internal/domain"
)

func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Leases hands out named, expiring locks shared by every replica.
type Leases struct {
	rdb    *redis.Client
	prefix string
}

func NewLeases(rdb *redis.Client) *Leases {
	return &Leases{rdb: rdb, prefix: "acueducto:lease:"}
}

type Lease struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire returns nil, nil when another holder owns the lease.
func (l *Leases) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	key := l.prefix + name
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, &domain.TransientError{Op: "acquire lease " + name, Err: err}
	}
	if !ok {
		return nil, nil
	}
	return &Lease{rdb: l.rdb, key: key, token: token}, nil
}

// Release drops the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Dedupe remembers keys for a while. First reports whether key is new.
type Dedupe struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDedupe(rdb *redis.Client, namespace string, ttl time.Duration) *Dedupe {
	return &Dedupe{rdb: rdb, prefix: "acueducto:" + namespace + ":", ttl: ttl}
}

func (d *Dedupe) First(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, &domain.TransientError{Op: "dedupe " + key, Err: err}
	}
	return ok, nil
}

// RateLimiter is a fixed one-minute window counter per key.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb, prefix: "acueducto:rl:"}
}

// Allow counts one hit for key and reports whether it is within limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	window := time.Now().Unix() / 60
	k := fmt.Sprintf("%s%s:%d", r.prefix, key, window)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, &domain.TransientError{Op: "rate limit", Err: err}
	}
	return incr.Val() <= int64(limit), nil
}
