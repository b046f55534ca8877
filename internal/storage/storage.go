package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
)

// ErrFlowNotFound is returned when no live flow exists for a state. Expired
// flows are reported the same way.
var ErrFlowNotFound = errors.New("pending flow not found")

// PendingFlow is an authorization request that has been started but whose
// callback has not arrived yet. It is keyed by State and consumed once.
type PendingFlow struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier,omitempty"`
	PKCE      bool      `json:"pkce"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the flow can no longer be completed at now.
func (f *PendingFlow) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

// FlowStore holds pending flows between the start page and the callback.
// GetAndDelete must be atomic: two callers racing on one state see at most
// one success.
type FlowStore interface {
	Save(ctx context.Context, flow *PendingFlow) error
	GetAndDelete(ctx context.Context, state string) (*PendingFlow, error)

	// CleanupExpired removes expired flows and returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}

func validateFlow(flow *PendingFlow) error {
	if flow == nil {
		return fmt.Errorf("flow is nil")
	}
	if flow.State == "" {
		return fmt.Errorf("flow state is required")
	}
	if flow.ExpiresAt.IsZero() {
		return fmt.Errorf("flow expiry is required")
	}
	return nil
}

// sealVerifier encrypts the verifier for backends that persist outside the process
func sealVerifier(enc crypto.Encryptor, verifier string) (string, error) {
	if verifier == "" {
		return "", nil
	}
	sealed, err := enc.Encrypt(verifier)
	if err != nil {
		return "", fmt.Errorf("encrypting verifier: %w", err)
	}
	return sealed, nil
}

func openVerifier(enc crypto.Encryptor, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	verifier, err := enc.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypting verifier: %w", err)
	}
	return verifier, nil
}
