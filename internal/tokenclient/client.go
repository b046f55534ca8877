// Package tokenclient performs the authorization code exchange against an
// OAuth 2.0 token endpoint.
package tokenclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/oauth-demo/internal/ioutil"
	"github.com/dgellow/oauth-demo/internal/urlutil"
	"golang.org/x/oauth2"
)

// maxResponseSize bounds how much of a token response is read
const maxResponseSize = 1 << 20

// ParamStyle selects where grant parameters travel
type ParamStyle string

const (
	// ParamsInQuery appends the parameters to the token endpoint URL and
	// sends a POST with an empty body.
	ParamsInQuery ParamStyle = "query"
	// ParamsInForm sends an application/x-www-form-urlencoded body.
	ParamsInForm ParamStyle = "form"
)

// Options configures a Client
type Options struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	ParamStyle    ParamStyle
	Timeout       time.Duration

	// Transport is wrapped with request logging. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client exchanges authorization codes for tokens. It never retries.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// New creates a token client
func New(opts Options) (*Client, error) {
	if opts.TokenEndpoint == "" {
		return nil, fmt.Errorf("token endpoint is required")
	}
	if _, err := url.Parse(opts.TokenEndpoint); err != nil {
		return nil, fmt.Errorf("invalid token endpoint: %w", err)
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if opts.ParamStyle == "" {
		opts.ParamStyle = ParamsInQuery
	}
	if opts.ParamStyle != ParamsInQuery && opts.ParamStyle != ParamsInForm {
		return nil, fmt.Errorf("unsupported param style %q", opts.ParamStyle)
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Transport: NewLoggingTransport(opts.Transport),
			// The token endpoint answers directly; a redirect is a misconfiguration
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Exchange posts the authorization_code grant. verifier is sent as
// code_verifier when non-empty.
//
// A 2xx JSON object is returned as-is even without access_token. A non-2xx
// response yields *oauth2.RetrieveError with the raw body.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (TokenResponse, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	params := url.Values{
		"grant_type":   {"authorization_code"},
		"redirect_uri": {c.opts.RedirectURI},
		"code":         {code},
	}
	if verifier != "" {
		params.Set("code_verifier", verifier)
	}

	req, err := c.newRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, truncated, err := ioutil.ReadAtMost(resp.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newRetrieveError(resp, body)
	}
	if truncated {
		return nil, fmt.Errorf("token response exceeds %d bytes", maxResponseSize)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("token endpoint returned invalid JSON (status %d): %w", resp.StatusCode, err)
	}
	return token, nil
}

func (c *Client) newRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	target := c.opts.TokenEndpoint
	var body io.Reader

	switch c.opts.ParamStyle {
	case ParamsInForm:
		body = strings.NewReader(params.Encode())
	default:
		var err error
		if target, err = urlutil.WithQuery(target, params); err != nil {
			return nil, fmt.Errorf("invalid token endpoint: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	return req, nil
}

func newRetrieveError(resp *http.Response, body []byte) *oauth2.RetrieveError {
	rerr := &oauth2.RetrieveError{
		Response: resp,
		Body:     body,
	}
	var fields struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	if json.Unmarshal(rerr.Body, &fields) == nil {
		rerr.ErrorCode = fields.Error
		rerr.ErrorDescription = fields.ErrorDescription
		rerr.ErrorURI = fields.ErrorURI
	}
	return rerr
}

// AsRetrieveError extracts the upstream error response, if err carries one
func AsRetrieveError(err error) (*oauth2.RetrieveError, bool) {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}
