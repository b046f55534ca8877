package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgellow/oauth-demo/internal/storage"
	"github.com/dgellow/oauth-demo/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStoreWithEncryptor(t *testing.T, enc *testutil.MockEncryptor) *storage.RedisFlowStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := storage.NewRedisFlowStoreWithClient(client, "enc:", enc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingFlow(state, verifier string) *storage.PendingFlow {
	now := time.Now()
	return &storage.PendingFlow{
		State:     state,
		Verifier:  verifier,
		PKCE:      verifier != "",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
}

func TestRedisFlowStore_VerifierIsSealed(t *testing.T) {
	enc := &testutil.MockEncryptor{}
	enc.On("Encrypt", "plain-verifier").Return("sealed-verifier", nil)
	enc.On("Decrypt", "sealed-verifier").Return("plain-verifier", nil)
	store := newRedisStoreWithEncryptor(t, enc)

	require.NoError(t, store.Save(context.Background(), pendingFlow("state-1", "plain-verifier")))
	got, err := store.GetAndDelete(context.Background(), "state-1")
	require.NoError(t, err)

	assert.Equal(t, "plain-verifier", got.Verifier)
	enc.AssertExpectations(t)
}

func TestRedisFlowStore_NoVerifierSkipsEncryption(t *testing.T) {
	enc := &testutil.MockEncryptor{}
	store := newRedisStoreWithEncryptor(t, enc)

	require.NoError(t, store.Save(context.Background(), pendingFlow("state-2", "")))
	got, err := store.GetAndDelete(context.Background(), "state-2")
	require.NoError(t, err)

	assert.Empty(t, got.Verifier)
	assert.False(t, got.PKCE)
	enc.AssertNotCalled(t, "Encrypt", "")
	enc.AssertNotCalled(t, "Decrypt", "")
}

func TestRedisFlowStore_EncryptionFailures(t *testing.T) {
	t.Run("encrypt", func(t *testing.T) {
		enc := &testutil.MockEncryptor{}
		enc.On("Encrypt", "v").Return("", errors.New("no key"))
		store := newRedisStoreWithEncryptor(t, enc)

		err := store.Save(context.Background(), pendingFlow("state-3", "v"))
		assert.ErrorContains(t, err, "encrypting verifier")
	})

	t.Run("decrypt", func(t *testing.T) {
		enc := &testutil.MockEncryptor{}
		enc.On("Encrypt", "v").Return("sealed", nil)
		enc.On("Decrypt", "sealed").Return("", errors.New("tampered"))
		store := newRedisStoreWithEncryptor(t, enc)

		require.NoError(t, store.Save(context.Background(), pendingFlow("state-4", "v")))
		_, err := store.GetAndDelete(context.Background(), "state-4")
		assert.ErrorContains(t, err, "decrypting verifier")
		assert.NotErrorIs(t, err, storage.ErrFlowNotFound)
	})
}
