package devauthz

import (
	"fmt"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/ory/fosite"
)

// Client is a confidential client registered with the dev server
type Client struct {
	ID            string
	Secret        []byte // bcrypt hash
	RedirectURIs  []string
	Scopes        []string
	GrantTypes    []string
	ResponseTypes []string

	CreatedAt int64
}

// NewConfidentialClient hashes secret and returns a client allowed to use the
// authorization code grant
func NewConfidentialClient(id, secret string, redirectURIs, scopes []string) (*Client, error) {
	if id == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if len(redirectURIs) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}

	hashed, err := crypto.HashClientSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("hashing client secret: %w", err)
	}

	return &Client{
		ID:            id,
		Secret:        hashed,
		RedirectURIs:  redirectURIs,
		Scopes:        scopes,
		GrantTypes:    []string{"authorization_code"},
		ResponseTypes: []string{"code"},
		CreatedAt:     time.Now().Unix(),
	}, nil
}

// ToFositeClient converts to the type fosite validates requests against
func (c *Client) ToFositeClient() *fosite.DefaultClient {
	return &fosite.DefaultClient{
		ID:            c.ID,
		Secret:        c.Secret,
		RedirectURIs:  c.RedirectURIs,
		Scopes:        c.Scopes,
		GrantTypes:    c.GrantTypes,
		ResponseTypes: c.ResponseTypes,
		Public:        false,
	}
}
