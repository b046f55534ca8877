package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreFlowStoreConfig(t *testing.T) {
	ctx := context.Background()
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreFlowStore(ctx, "", "(default)", "test_collection", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("nil encryptor", func(t *testing.T) {
		_, err := NewFirestoreFlowStore(ctx, "test-project", "(default)", "test_collection", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryptor is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreFlowStore(ctx, "test-project", "(default)", "", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection is required")
	})
}

func TestFlowDocConversion(t *testing.T) {
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	created := time.Unix(1700000000, 123456789)
	flow := &PendingFlow{
		State:     "state-1",
		Verifier:  "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		PKCE:      true,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}

	doc, err := FromPendingFlow(flow, encryptor)
	require.NoError(t, err)
	assert.NotEqual(t, flow.Verifier, doc.SealedVerifier)
	assert.Equal(t, created.UnixNano(), doc.CreatedAt)

	back, err := doc.ToPendingFlow(encryptor)
	require.NoError(t, err)
	assert.Equal(t, flow.Verifier, back.Verifier)
	assert.True(t, flow.CreatedAt.Equal(back.CreatedAt))
	assert.True(t, flow.ExpiresAt.Equal(back.ExpiresAt))

	other, err := crypto.NewEncryptor([]byte("another-encryption-key-32-bytes!"))
	require.NoError(t, err)
	_, err = doc.ToPendingFlow(other)
	assert.Error(t, err, "a different key cannot open the verifier")
}
