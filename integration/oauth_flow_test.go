package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthFlow_PKCE(t *testing.T) {
	for _, style := range []string{"query", "form"} {
		t.Run(style, func(t *testing.T) {
			env := startEnv(t, withTokenParams(style))
			browser := newBrowser(t)

			authURL := env.startFlow(t, browser)
			assert.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
			assert.NotEmpty(t, authURL.Query().Get("code_challenge"))
			assert.Equal(t, testClientID, authURL.Query().Get("client_id"))

			// Following redirects lands back on the callback with the flow cookie.
			status, body := get(t, browser, authURL.String())
			require.Equal(t, http.StatusOK, status, body)

			token, ok := accessTokenOf(body)
			require.True(t, ok, "callback page has no access token")
			assert.NotEqual(t, "NONE", token)
			assert.NotEmpty(t, token)
		})
	}
}

func TestOAuthFlow_LegacyWithoutPKCE(t *testing.T) {
	env := startEnv(t, withoutPKCE())
	browser := newBrowser(t)

	authURL := env.startFlow(t, browser)
	assert.Empty(t, authURL.Query().Get("code_challenge"))
	assert.Empty(t, authURL.Query().Get("code_challenge_method"))

	status, body := get(t, browser, authURL.String())
	require.Equal(t, http.StatusOK, status, body)
	token, ok := accessTokenOf(body)
	require.True(t, ok)
	assert.NotEqual(t, "NONE", token)
	assert.Contains(t, body, "PKCE is disabled")
}

func TestOAuthFlow_RedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("IT_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")

	env := startEnv(t, withRedisStorage(mr.Addr(), "IT_ENCRYPTION_KEY"))
	browser := newBrowser(t)

	authURL := env.startFlow(t, browser)
	state := authURL.Query().Get("state")
	require.True(t, mr.Exists("it:flow:"+state), "pending flow should be stored in redis")

	status, body := get(t, browser, authURL.String())
	require.Equal(t, http.StatusOK, status, body)
	_, ok := accessTokenOf(body)
	assert.True(t, ok)
	assert.False(t, mr.Exists("it:flow:"+state), "completed flow should be removed")
}

func TestOAuthFlow_ConcurrentFlows(t *testing.T) {
	env := startEnv(t)

	browsers := make([]*http.Client, 5)
	callbacks := make([]string, 5)
	for i := range browsers {
		browsers[i] = newBrowser(t)
		callbacks[i] = env.authorize(t, browsers[i], env.startFlow(t, browsers[i]))
	}

	// Complete in reverse order of start.
	for i := len(browsers) - 1; i >= 0; i-- {
		status, body := get(t, browsers[i], callbacks[i])
		require.Equal(t, http.StatusOK, status, body)
		_, ok := accessTokenOf(body)
		assert.True(t, ok)
	}
}

func TestOAuthFlow_ReplayedCallbackRejected(t *testing.T) {
	env := startEnv(t)
	browser := newBrowser(t)

	callback := env.authorize(t, browser, env.startFlow(t, browser))

	status, _ := get(t, browser, callback)
	require.Equal(t, http.StatusOK, status)

	status, body := get(t, browser, callback)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.True(t, strings.Contains(body, "invalid_state"), body)
}
