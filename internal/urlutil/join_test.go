package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		paths   []string
		want    string
		wantErr bool
	}{
		{
			name:  "callback under base",
			base:  "http://localhost:8080",
			paths: []string{"callback"},
			want:  "http://localhost:8080/callback",
		},
		{
			name:  "base with path and trailing slash",
			base:  "https://auth.example.com/tenant/",
			paths: []string{"/oauth2", "token"},
			want:  "https://auth.example.com/tenant/oauth2/token",
		},
		{
			name:  "trailing slash preserved",
			base:  "https://example.com",
			paths: []string{"oauth2/"},
			want:  "https://example.com/oauth2/",
		},
		{
			name:    "invalid base URL",
			base:    "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.paths...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithQuery(t *testing.T) {
	got, err := WithQuery("https://auth.example.com/token?tenant=acme&code=old", url.Values{
		"code":       {"abc123"},
		"grant_type": {"authorization_code"},
	})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/token", u.Path)
	assert.Equal(t, "acme", u.Query().Get("tenant"))
	assert.Equal(t, "abc123", u.Query().Get("code"))
	assert.Equal(t, "authorization_code", u.Query().Get("grant_type"))

	_, err = WithQuery("://bad", nil)
	assert.Error(t, err)
}
