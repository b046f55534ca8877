package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(state string, now time.Time, ttl time.Duration) *PendingFlow {
	return &PendingFlow{
		State:     state,
		Verifier:  "verifier-" + state,
		PKCE:      true,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryFlowStore_SaveAndConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()

	require.NoError(t, store.Save(ctx, newFlow("state-1", time.Now(), time.Minute)))

	flow, err := store.GetAndDelete(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-state-1", flow.Verifier)
	assert.True(t, flow.PKCE)

	_, err = store.GetAndDelete(ctx, "state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound, "a flow can only be consumed once")
}

func TestMemoryFlowStore_UnknownState(t *testing.T) {
	store := NewMemoryFlowStore()
	_, err := store.GetAndDelete(context.Background(), "never-saved")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryFlowStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, newFlow("short", now, time.Minute)))
	require.NoError(t, store.Save(ctx, newFlow("long", now, time.Hour)))

	now = now.Add(2 * time.Minute)

	_, err := store.GetAndDelete(ctx, "short")
	assert.ErrorIs(t, err, ErrFlowNotFound)

	flow, err := store.GetAndDelete(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "long", flow.State)
}

func TestMemoryFlowStore_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	for i := range 3 {
		require.NoError(t, store.Save(ctx, newFlow(fmt.Sprintf("old-%d", i), now, time.Minute)))
	}
	require.NoError(t, store.Save(ctx, newFlow("fresh", now, time.Hour)))

	now = now.Add(time.Minute)

	count, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryFlowStore_RejectsInvalidFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()

	assert.Error(t, store.Save(ctx, nil))
	assert.Error(t, store.Save(ctx, &PendingFlow{ExpiresAt: time.Now().Add(time.Minute)}))
	assert.Error(t, store.Save(ctx, &PendingFlow{State: "no-expiry"}))
}

func TestMemoryFlowStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	require.NoError(t, store.Save(ctx, newFlow("contended", time.Now(), time.Minute)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetAndDelete(ctx, "contended"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
