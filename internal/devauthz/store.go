package devauthz

import (
	"context"
	"sync"

	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/ory/fosite"
	"github.com/ory/fosite/storage"
)

var _ fosite.Storage = (*Store)(nil)

// Store keeps codes and tokens in fosite's memory store and clients in its
// own map
type Store struct {
	*storage.MemoryStore
	clients      map[string]*Client
	clientsMutex sync.RWMutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		MemoryStore: storage.NewMemoryStore(),
		clients:     make(map[string]*Client),
	}
}

// GetClient implements fosite.ClientManager
func (s *Store) GetClient(_ context.Context, id string) (fosite.Client, error) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return client.ToFositeClient(), nil
}

// RegisterClient adds or replaces a client
func (s *Store) RegisterClient(client *Client) {
	s.clientsMutex.Lock()
	s.clients[client.ID] = client
	count := len(s.clients)
	s.clientsMutex.Unlock()

	log.LogInfoWithFields("devauthz", "Registered client", map[string]any{
		"clientId":     client.ID,
		"redirectUris": client.RedirectURIs,
		"scopes":       client.Scopes,
		"total":        count,
	})
}
