package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oportunidade/payhook/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}

	ok, err := client.SetNX(ctx, "k", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "owner-a", store.data["k"])
}

func TestCompareAndDeleteChecksOwner(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}
	store.data["k"] = "owner-a"

	ok, err := client.CompareAndDelete(ctx, "k", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, store.data, "k")

	ok, err = client.CompareAndDelete(ctx, "k", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, store.data, "k")
}

func TestCompareAndExpirePassesMilliseconds(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}
	store.data["k"] = "owner-a"

	ok, err := client.CompareAndExpire(ctx, "k", "owner-a", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(90000), store.pexpire["k"])

	ok, err = client.CompareAndExpire(ctx, "missing", "owner-a", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestZeroClientReturnsNotInitialized(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), ErrNotInitialized)
	_, err := client.SetNX(ctx, "x", "y", time.Second)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = client.CompareAndDelete(ctx, "x", "y")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, client.Close())
}

func TestLockKey(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "payhook:lock:sweep", client.LockKey("sweep"))
	assert.Equal(t, "payhook:lock", client.LockKey(" "))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/2", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
}

type mockCmdable struct {
	data    map[string]string
	pexpire map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, pexpire: map[string]int64{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key, owner := keys[0], args[0].(string)
	if m.data[key] != owner || owner == "" {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case compareAndDeleteScript:
		delete(m.data, key)
	case compareAndExpireScript:
		m.pexpire[key] = args[1].(int64)
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}
