package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/dgellow/oauth-demo/internal"
	"github.com/dgellow/oauth-demo/internal/config"
	"github.com/dgellow/oauth-demo/internal/devauthz"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "demo-client"
	testClientSecret = "demo-secret"
	testCookieKey    = "integration-cookie-key-0123456789"
)

var (
	authorizeLinkPattern = regexp.MustCompile(`id="start-flow" href="([^"]+)"`)
	accessTokenPattern   = regexp.MustCompile(`id="access-token">([^<]*)<`)
)

// testEnv is a running dev authorization server and demo client pair
type testEnv struct {
	authz *httptest.Server
	demo  *httptest.Server
}

type envOption func(cfg map[string]any)

func withoutPKCE() envOption {
	return func(cfg map[string]any) {
		cfg["oauth"].(map[string]any)["pkce"] = false
	}
}

func withTokenParams(style string) envOption {
	return func(cfg map[string]any) {
		cfg["oauth"].(map[string]any)["tokenParams"] = style
	}
}

func withClientSecretEnv(name string) envOption {
	return func(cfg map[string]any) {
		cfg["oauth"].(map[string]any)["client"].(map[string]any)["secret"] = map[string]string{"$env": name}
	}
}

func withRedisStorage(addr, encryptionKeyEnv string) envOption {
	return func(cfg map[string]any) {
		flows := cfg["flows"].(map[string]any)
		flows["storage"] = "redis"
		flows["encryptionKey"] = map[string]string{"$env": encryptionKeyEnv}
		flows["redis"] = map[string]any{"addr": addr, "keyPrefix": "it:flow:"}
	}
}

// buildTestConfig returns a config document pointing the demo at authzURL
func buildTestConfig(demoURL, authzURL string) map[string]any {
	return map[string]any{
		"version": "v0.0.1-DEV_EDITION",
		"server": map[string]any{
			"addr":    "127.0.0.1:0",
			"baseURL": demoURL,
		},
		"oauth": map[string]any{
			"client": map[string]any{
				"id":     testClientID,
				"secret": map[string]string{"$env": "IT_CLIENT_SECRET"},
			},
			"tokenEndpoint":     authzURL + devauthz.TokenPath,
			"authorizeEndpoint": authzURL + devauthz.AuthorizePath,
			"scopes":            []string{"openid"},
			"pkce":              true,
		},
		"flows": map[string]any{
			"storage":   "memory",
			"ttl":       "10m",
			"cookieKey": map[string]string{"$env": "IT_COOKIE_KEY"},
		},
	}
}

// startEnv runs the dev authorization server and the demo client in process
func startEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	t.Setenv("OAUTH_DEMO_ENV", "dev")
	t.Setenv("IT_CLIENT_SECRET", testClientSecret)
	t.Setenv("IT_COOKIE_KEY", testCookieKey)

	demo := httptest.NewUnstartedServer(nil)
	demoURL := "http://" + demo.Listener.Addr().String()

	authz := httptest.NewUnstartedServer(nil)
	authzURL := "http://" + authz.Listener.Addr().String()
	authzServer, err := devauthz.New(devauthz.Config{
		Issuer:       authzURL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURIs: []string{demoURL + config.DefaultCallbackPath},
		Scopes:       []string{"openid", "profile"},
		Secret:       []byte(strings.Repeat("k", 32)),
	})
	require.NoError(t, err)
	authz.Config.Handler = authzServer.Handler()
	authz.Start()
	t.Cleanup(authz.Close)

	raw := buildTestConfig(demoURL, authzURL)
	for _, opt := range opts {
		opt(raw)
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	cfg, err := config.Parse(data)
	require.NoError(t, err)

	app, err := internal.NewOAuthDemo(context.Background(), cfg)
	require.NoError(t, err)
	demo.Config.Handler = app.Handler()
	demo.Start()
	t.Cleanup(demo.Close)

	trace(t, "demo at %s, authz at %s", demoURL, authzURL)
	return &testEnv{authz: authz, demo: demo}
}

// newBrowser returns a client with its own cookie jar that follows redirects
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// withoutRedirects returns a copy of browser that stops at the first redirect
func withoutRedirects(browser *http.Client) *http.Client {
	c := *browser
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

func get(t *testing.T, client *http.Client, rawURL string) (int, string) {
	t.Helper()
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// startFlow loads the main page and returns the authorization URL it links to
func (e *testEnv) startFlow(t *testing.T, browser *http.Client) *url.URL {
	t.Helper()
	status, body := get(t, browser, e.demo.URL+"/")
	require.Equal(t, http.StatusOK, status, body)

	m := authorizeLinkPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "main page has no authorize link")
	u, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)
	return u
}

// authorize visits the authorization URL and returns the callback URL the
// server redirects to, without following it
func (e *testEnv) authorize(t *testing.T, browser *http.Client, authURL *url.URL) string {
	t.Helper()
	resp, err := withoutRedirects(browser).Get(authURL.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Contains(t, []int{http.StatusFound, http.StatusSeeOther}, resp.StatusCode)

	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, e.demo.URL+config.DefaultCallbackPath), "unexpected redirect %s", loc)
	return loc
}

func accessTokenOf(body string) (string, bool) {
	m := accessTokenPattern.FindStringSubmatch(body)
	if len(m) != 2 {
		return "", false
	}
	return html.UnescapeString(m[1]), true
}

// trace logs a formatted message if TRACE is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// tracef logs a formatted message to stdout if TRACE is set (for use outside tests)
func tracef(format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		fmt.Printf("TRACE: "+format+"\n", args...)
	}
}
