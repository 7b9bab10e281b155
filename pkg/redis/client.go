package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace = "payhook"
	lockPrefix   = "lock"
)

// Owner-checked mutations run as scripts so the compare and the write are one
// server-side step.
const (
	compareAndDeleteScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`
	compareAndExpireScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) end return 0`
)

// ErrNotInitialized is returned by every helper on a zero Client.
var ErrNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client holds the Redis connection used for coordination between replicas.
// Only the sweep lock lives here; idempotency is owned by the database.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// New connects using either PAYHOOK_REDIS_URL or the discrete address fields
// and pings once before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// URL query parameters win over the discrete settings.
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T int | time.Duration](dst *T, value T) {
	if *dst == 0 {
		*dst = value
	}
}

// SetNX stores value only if key is absent.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, ErrNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// CompareAndDelete deletes key only while it still holds owner.
func (c *Client) CompareAndDelete(ctx context.Context, key, owner string) (bool, error) {
	return c.ownerScript(ctx, compareAndDeleteScript, key, owner)
}

// CompareAndExpire resets the TTL of key only while it still holds owner.
func (c *Client) CompareAndExpire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.ownerScript(ctx, compareAndExpireScript, key, owner, ttl.Milliseconds())
}

func (c *Client) ownerScript(ctx context.Context, script, key, owner string, extra ...any) (bool, error) {
	if c.store == nil {
		return false, ErrNotInitialized
	}
	args := append([]any{owner}, extra...)
	n, err := c.store.Eval(ctx, script, []string{key}, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// LockKey returns the namespaced key guarding a singleton job.
func (c *Client) LockKey(name string) string {
	parts := []string{keyNamespace, lockPrefix}
	if name = strings.TrimSpace(name); name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, ":")
}
