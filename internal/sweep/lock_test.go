package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	evalErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndExpire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if m.evalErr != nil {
		return false, m.evalErr
	}
	if m.values[key] != owner {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, owner string) (bool, error) {
	if m.evalErr != nil {
		return false, m.evalErr
	}
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "payhook:lock:sweep", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "payhook:lock:sweep", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "payhook:lock:sweep")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseLeavesForeignOwner(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls["k"])

	store.values["k"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["k"])
}

func TestRedisLockRefresh(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, lock.Refresh(ctx), ErrLockLost)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.ttls["k"] = time.Second
	require.NoError(t, lock.Refresh(ctx))
	assert.Equal(t, time.Minute, store.ttls["k"])

	store.values["k"] = "someone-else"
	assert.ErrorIs(t, lock.Refresh(ctx), ErrLockLost)

	store.evalErr = errors.New("connection reset")
	assert.NoError(t, lock.Release(ctx), "released state is local once the lease is lost")
}
