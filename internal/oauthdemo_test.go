package internal

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/dgellow/oauth-demo/internal/config"
	"github.com/dgellow/oauth-demo/internal/pkce"
	"github.com/dgellow/oauth-demo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authorizeLink = regexp.MustCompile(`id="start-flow" href="([^"]+)"`)

func testConfig(t *testing.T, tokenEndpoint string, pkceEnabled bool) config.Config {
	t.Helper()
	t.Setenv("TEST_CLIENT_SECRET", "demo-secret")
	t.Setenv("TEST_COOKIE_KEY", "0123456789abcdef0123456789abcdef")

	raw := fmt.Sprintf(`{
		"version": "v0.0.1-DEV_EDITION",
		"server": {"addr": "127.0.0.1:0", "baseURL": "http://localhost:8080"},
		"oauth": {
			"client": {"id": "demo-client", "secret": {"$env": "TEST_CLIENT_SECRET"}},
			"tokenEndpoint": %q,
			"authorizeEndpoint": "http://localhost:9090/oauth2/authorize",
			"pkce": %t
		},
		"flows": {"cookieKey": {"$env": "TEST_COOKIE_KEY"}}
	}`, tokenEndpoint, pkceEnabled)

	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

func TestCallbackPathOf(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "http://localhost:8080/callback", want: "/callback"},
		{uri: "http://localhost:8080/oauth/return", want: "/oauth/return"},
		{uri: "http://localhost:8080", want: "/callback"},
		{uri: "http://localhost:8080/", want: "/callback"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := callbackPathOf(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := callbackPathOf("http://[::1")
	assert.Error(t, err)
}

func TestFlowCookieKey(t *testing.T) {
	var cfg config.Config
	cfg.Flows.CookieKey = config.Secret("0123456789abcdef0123456789abcdef")
	key, err := flowCookieKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), key)

	cfg.Flows.CookieKey = ""
	generated, err := flowCookieKey(cfg)
	require.NoError(t, err)
	assert.Len(t, generated, 32)
}

func TestOAuthDemo_FullFlowThroughHandler(t *testing.T) {
	t.Setenv("OAUTH_DEMO_ENV", "dev")

	var sentVerifier string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sentVerifier = r.URL.Query().Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-xyz"}`)
	}))
	defer tokenSrv.Close()

	app, err := NewOAuthDemo(context.Background(), testConfig(t, tokenSrv.URL, true))
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	m := authorizeLink.FindStringSubmatch(string(body))
	require.Len(t, m, 2)
	authURL, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	challenge := authURL.Query().Get("code_challenge")

	resp, err = client.Get(srv.URL + "/callback?" + url.Values{"code": {"abc123"}, "state": {state}}.Encode())
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `id="access-token">tok-xyz<`)
	assert.Equal(t, challenge, pkce.Challenge(sentVerifier))

	resp, err = client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `oauth_demo_flows_completed_total{outcome="token"} 1`)
	assert.Contains(t, string(body), `oauth_demo_http_requests_total{code="200",method="GET",route="/callback"} 1`)
}

func TestOAuthDemo_Routes(t *testing.T) {
	app, err := NewOAuthDemo(context.Background(), testConfig(t, "http://127.0.0.1:1/token", true))
	require.NoError(t, err)
	h := app.Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/", want: http.StatusOK},
		{method: http.MethodGet, path: "/health", want: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{method: http.MethodGet, path: "/callback", want: http.StatusBadRequest},
		{method: http.MethodPost, path: "/", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestOAuthDemo_LegacyModeWarnsAtStartup(t *testing.T) {
	logs := testutil.CaptureLogs(t)

	_, err := NewOAuthDemo(context.Background(), testConfig(t, "http://127.0.0.1:1/token", false))
	require.NoError(t, err)

	_, ok := logs.Find("PKCE is disabled; flows run without a code verifier. This mode is deprecated")
	assert.True(t, ok)
}

func TestOAuthDemo_RunContextStopsOnCancel(t *testing.T) {
	app, err := NewOAuthDemo(context.Background(), testConfig(t, "http://127.0.0.1:1/token", true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not shut down")
	}
}
