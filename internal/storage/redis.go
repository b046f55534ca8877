package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/redis/go-redis/v9"
)

// Ensure RedisFlowStore implements FlowStore
var _ FlowStore = (*RedisFlowStore)(nil)

// RedisOptions configures the redis connection
type RedisOptions struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisFlowStore stores pending flows as JSON strings with a key TTL.
// Expiry is enforced by redis, so CleanupExpired has nothing to do.
type RedisFlowStore struct {
	client    redis.UniversalClient
	keyPrefix string
	encryptor crypto.Encryptor
	now       func() time.Time
}

// redisFlow is the persisted form; the verifier is encrypted
type redisFlow struct {
	State          string    `json:"state"`
	SealedVerifier string    `json:"verifier,omitempty"`
	PKCE           bool      `json:"pkce"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewRedisFlowStore connects to redis and verifies the connection with PING
func NewRedisFlowStore(ctx context.Context, opts RedisOptions, encryptor crypto.Encryptor) (*RedisFlowStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	store, err := NewRedisFlowStoreWithClient(client, opts.KeyPrefix, encryptor)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	log.LogInfoWithFields("redis", "Connected to redis flow store", map[string]any{
		"addr": opts.Addr,
		"db":   opts.DB,
	})
	return store, nil
}

// NewRedisFlowStoreWithClient wraps an existing client
func NewRedisFlowStoreWithClient(client redis.UniversalClient, keyPrefix string, encryptor crypto.Encryptor) (*RedisFlowStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &RedisFlowStore{
		client:    client,
		keyPrefix: keyPrefix,
		encryptor: encryptor,
		now:       time.Now,
	}, nil
}

func (s *RedisFlowStore) key(state string) string {
	return s.keyPrefix + state
}

// Save writes the flow with a TTL matching its expiry
func (s *RedisFlowStore) Save(ctx context.Context, flow *PendingFlow) error {
	if err := validateFlow(flow); err != nil {
		return err
	}

	ttl := flow.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("flow already expired")
	}

	sealed, err := sealVerifier(s.encryptor, flow.Verifier)
	if err != nil {
		return err
	}

	data, err := json.Marshal(redisFlow{
		State:          flow.State,
		SealedVerifier: sealed,
		PKCE:           flow.PKCE,
		CreatedAt:      flow.CreatedAt,
		ExpiresAt:      flow.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	if err := s.client.Set(ctx, s.key(flow.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow: %w", err)
	}
	return nil
}

// GetAndDelete uses GETDEL so concurrent callbacks cannot both consume a flow
func (s *RedisFlowStore) GetAndDelete(ctx context.Context, state string) (*PendingFlow, error) {
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	var stored redisFlow
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	flow := &PendingFlow{
		State:     stored.State,
		PKCE:      stored.PKCE,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	// Key TTL has second granularity; check the exact expiry too
	if flow.IsExpired(s.now()) {
		return nil, ErrFlowNotFound
	}

	if flow.Verifier, err = openVerifier(s.encryptor, stored.SealedVerifier); err != nil {
		return nil, err
	}
	return flow, nil
}

// CleanupExpired is a no-op: redis expires keys itself
func (s *RedisFlowStore) CleanupExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Close closes the redis client
func (s *RedisFlowStore) Close() error {
	return s.client.Close()
}
