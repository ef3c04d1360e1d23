package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_Reserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("reserves new key", func(t *testing.T) {
		reserved, err := store.Reserve(ctx, "key-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, reserved, "new key should be reserved")
	})

	t.Run("rejects held key", func(t *testing.T) {
		reserved, err := store.Reserve(ctx, "key-2", time.Hour)
		require.NoError(t, err)
		assert.True(t, reserved)

		reserved, err = store.Reserve(ctx, "key-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, reserved, "held key should not be reserved twice")
	})

	t.Run("allows reservation after expiration", func(t *testing.T) {
		reserved, err := store.Reserve(ctx, "key-3", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, reserved)

		time.Sleep(20 * time.Millisecond)

		reserved, err = store.Reserve(ctx, "key-3", time.Hour)
		require.NoError(t, err)
		assert.True(t, reserved, "expired key should be reservable")
	})
}

func TestInMemoryIdempotencyStore_CompleteAndLookup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("unknown key is not found", func(t *testing.T) {
		_, found, err := store.Lookup(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("pending reservation is not found", func(t *testing.T) {
		_, err := store.Reserve(ctx, "pending", time.Hour)
		require.NoError(t, err)

		_, found, err := store.Lookup(ctx, "pending")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("completed result is returned", func(t *testing.T) {
		_, err := store.Reserve(ctx, "done", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Complete(ctx, "done", []byte(`{"ok":true}`), time.Hour))

		payload, found, err := store.Lookup(ctx, "done")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"ok":true}`, string(payload))

		reserved, err := store.Reserve(ctx, "done", time.Hour)
		require.NoError(t, err)
		assert.False(t, reserved, "completed key must not be reserved again")
	})

	t.Run("expired result is not found", func(t *testing.T) {
		require.NoError(t, store.Complete(ctx, "short", []byte("x"), 10*time.Millisecond))
		time.Sleep(20 * time.Millisecond)

		_, found, err := store.Lookup(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	_, err := store.Reserve(ctx, "failed", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "failed"))

	reserved, err := store.Reserve(ctx, "failed", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved, "released key should be reservable again")

	require.NoError(t, store.Complete(ctx, "failed", []byte("result"), time.Hour))
	require.NoError(t, store.Release(ctx, "failed"))

	_, found, err := store.Lookup(ctx, "failed")
	require.NoError(t, err)
	assert.True(t, found, "release must not drop a completed result")
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	store.Reserve(ctx, "short-lived-1", 10*time.Millisecond)
	store.Complete(ctx, "short-lived-2", []byte("a"), 10*time.Millisecond)
	store.Complete(ctx, "long-lived", []byte("b"), time.Hour)

	assert.Equal(t, 3, store.Size())

	time.Sleep(20 * time.Millisecond)
	store.cleanup()

	assert.Equal(t, 1, store.Size())

	_, found, err := store.Lookup(ctx, "long-lived")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 100
	const key = "concurrent-key"

	results := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			reserved, err := store.Reserve(ctx, key, time.Hour)
			results <- err == nil && reserved
		}()
	}

	winners := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			winners++
		}
	}

	assert.Equal(t, 1, winners, "exactly one goroutine should reserve the key")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	assert.NoError(t, store.Close())
	// Multiple closes should be safe
	assert.NoError(t, store.Close())
}
