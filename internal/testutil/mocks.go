package testutil

import (
	"context"

	"github.com/dgellow/oauth-demo/internal/storage"
	"github.com/dgellow/oauth-demo/internal/tokenclient"
	"github.com/stretchr/testify/mock"
)

// MockFlowStore is a mock implementation of storage.FlowStore
type MockFlowStore struct {
	mock.Mock
}

var _ storage.FlowStore = (*MockFlowStore)(nil)

func (m *MockFlowStore) Save(ctx context.Context, flow *storage.PendingFlow) error {
	args := m.Called(ctx, flow)
	return args.Error(0)
}

func (m *MockFlowStore) GetAndDelete(ctx context.Context, state string) (*storage.PendingFlow, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PendingFlow), args.Error(1)
}

func (m *MockFlowStore) CleanupExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockFlowStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockExchanger is a mock token endpoint client
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, code, verifier string) (tokenclient.TokenResponse, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tokenclient.TokenResponse), args.Error(1)
}

// MockEncryptor is a mock implementation of crypto.Encryptor
type MockEncryptor struct {
	mock.Mock
}

func (m *MockEncryptor) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockEncryptor) Decrypt(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}
