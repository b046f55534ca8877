// Package flow runs the authorization code flow: it starts flows, binds them
// to the browser, and completes them by exchanging the returned code.
package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/dgellow/oauth-demo/internal/metrics"
	"github.com/dgellow/oauth-demo/internal/pkce"
	"github.com/dgellow/oauth-demo/internal/storage"
	"github.com/dgellow/oauth-demo/internal/tokenclient"
	"golang.org/x/oauth2"
)

// NoToken is rendered when no access token was obtained
const NoToken = "NONE"

// Exchanger swaps an authorization code for a token response
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier string) (tokenclient.TokenResponse, error)
}

// Options configures a Manager
type Options struct {
	ClientID string

	// PKCE controls whether new flows carry a code verifier. Flows already
	// pending keep the mode they were started with.
	PKCE bool

	TTL time.Duration

	// AuthorizeEndpoint is optional; without it StartResult.AuthorizeURL is empty.
	AuthorizeEndpoint string
	TokenEndpoint     string
	RedirectURI       string
	Scopes            []string

	// BindingKey signs the browser binding
	BindingKey []byte

	Metrics *metrics.Metrics
}

// Manager starts and completes flows. It is safe for concurrent use; all
// per-flow state lives in the FlowStore keyed by state.
type Manager struct {
	opts      Options
	store     storage.FlowStore
	exchanger Exchanger
	signer    crypto.TokenSigner
	oauth     *oauth2.Config
	now       func() time.Time
}

// binding is the payload of the flow cookie
type binding struct {
	State string `json:"state"`
}

// StartResult is what the start page renders
type StartResult struct {
	State           string
	CodeChallenge   string
	ChallengeMethod string
	AccessToken     string
	ClientID        string
	AuthorizeURL    string

	// Binding is the signed value for the flow cookie
	Binding   string
	ExpiresAt time.Time
}

// CallbackParams are the inputs of the callback
type CallbackParams struct {
	Code    string
	State   string
	Binding string
}

// CompleteResult is what the callback page renders
type CompleteResult struct {
	AccessToken string
	ClientID    string
	TokenIssued bool
}

// NewManager creates a flow manager
func NewManager(opts Options, store storage.FlowStore, exchanger Exchanger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("exchanger is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("flow TTL must be positive")
	}
	if len(opts.BindingKey) < 32 {
		return nil, fmt.Errorf("binding key must be at least 32 bytes")
	}

	m := &Manager{
		opts:      opts,
		store:     store,
		exchanger: exchanger,
		signer:    crypto.NewTokenSigner(opts.BindingKey, opts.TTL),
		now:       time.Now,
	}
	if opts.AuthorizeEndpoint != "" {
		m.oauth = &oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURI,
			Scopes:      opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthorizeEndpoint,
				TokenURL:  opts.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
	}
	return m, nil
}

// PKCE reports whether new flows use PKCE
func (m *Manager) PKCE() bool {
	return m.opts.PKCE
}

// TTL is the lifetime of a pending flow
func (m *Manager) TTL() time.Duration {
	return m.opts.TTL
}

// Start creates a pending flow and returns what the start page needs
func (m *Manager) Start(ctx context.Context) (*StartResult, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	var verifier, challenge, method string
	if m.opts.PKCE {
		verifier = pkce.GenerateVerifier()
		challenge = pkce.Challenge(verifier)
		method = pkce.MethodS256
	}

	now := m.now()
	flow := &storage.PendingFlow{
		State:     state,
		Verifier:  verifier,
		PKCE:      m.opts.PKCE,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.TTL),
	}
	if err := m.store.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("saving pending flow: %w", err)
	}

	signed, err := m.signer.Sign(binding{State: state})
	if err != nil {
		return nil, fmt.Errorf("signing flow binding: %w", err)
	}

	result := &StartResult{
		State:           state,
		CodeChallenge:   challenge,
		ChallengeMethod: method,
		AccessToken:     NoToken,
		ClientID:        m.opts.ClientID,
		Binding:         signed,
		ExpiresAt:       flow.ExpiresAt,
	}
	if m.oauth != nil {
		var authOpts []oauth2.AuthCodeOption
		if m.opts.PKCE {
			authOpts = append(authOpts, oauth2.S256ChallengeOption(verifier))
		}
		result.AuthorizeURL = m.oauth.AuthCodeURL(state, authOpts...)
	}

	m.opts.Metrics.FlowStarted()
	log.LogDebugWithFields("flow", "Flow started", map[string]any{
		"pkce":      m.opts.PKCE,
		"expiresAt": flow.ExpiresAt.Format(time.RFC3339),
	})
	return result, nil
}

// Complete validates the callback against the browser binding and the
// pending flow, consumes the flow, and exchanges the code.
//
// A token response without access_token is not an error: the result carries
// NoToken. Upstream failures are wrapped in ErrExchange.
func (m *Manager) Complete(ctx context.Context, p CallbackParams) (*CompleteResult, error) {
	if p.Code == "" || p.State == "" {
		m.opts.Metrics.FlowCompleted(metrics.OutcomeError)
		return nil, ErrMissingParameter
	}

	var b binding
	if err := m.signer.Verify(p.Binding, &b); err != nil {
		m.opts.Metrics.FlowCompleted(metrics.OutcomeStateMismatch)
		return nil, fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	if subtle.ConstantTimeCompare([]byte(b.State), []byte(p.State)) != 1 {
		m.opts.Metrics.FlowCompleted(metrics.OutcomeStateMismatch)
		return nil, ErrStateMismatch
	}

	flow, err := m.store.GetAndDelete(ctx, p.State)
	if err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			m.opts.Metrics.FlowCompleted(metrics.OutcomeUnknownState)
			return nil, ErrUnknownState
		}
		m.opts.Metrics.FlowCompleted(metrics.OutcomeError)
		return nil, fmt.Errorf("loading pending flow: %w", err)
	}

	var verifier string
	if flow.PKCE {
		verifier = flow.Verifier
	}

	start := m.now()
	token, err := m.exchanger.Exchange(ctx, p.Code, verifier)
	if err != nil {
		m.opts.Metrics.ObserveExchange(metrics.OutcomeUpstreamError, m.now().Sub(start))
		m.opts.Metrics.FlowCompleted(metrics.OutcomeUpstreamError)
		m.logExchangeError(flow, err)
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	result := &CompleteResult{ClientID: m.opts.ClientID}
	if accessToken, ok := token.AccessToken(); ok {
		result.AccessToken = accessToken
		result.TokenIssued = true
		m.opts.Metrics.ObserveExchange(metrics.OutcomeToken, m.now().Sub(start))
		m.opts.Metrics.FlowCompleted(metrics.OutcomeToken)
	} else {
		result.AccessToken = NoToken
		m.opts.Metrics.ObserveExchange(metrics.OutcomeNoToken, m.now().Sub(start))
		m.opts.Metrics.FlowCompleted(metrics.OutcomeNoToken)
		log.LogWarnWithFields("flow", "Token response has no access_token", map[string]any{
			"tokenType": token.TokenType(),
		})
	}
	return result, nil
}

// logExchangeError logs the raw upstream body for PKCE flows. Legacy flows
// log only the status.
func (m *Manager) logExchangeError(flow *storage.PendingFlow, err error) {
	rerr, ok := tokenclient.AsRetrieveError(err)
	if !ok {
		log.LogErrorWithFields("flow", "Token request failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	fields := map[string]any{}
	if rerr.Response != nil {
		fields["status"] = rerr.Response.StatusCode
	}
	if rerr.ErrorCode != "" {
		fields["errorCode"] = rerr.ErrorCode
	}
	if flow.PKCE {
		fields["body"] = string(rerr.Body)
	}
	log.LogErrorWithFields("flow", "Token endpoint returned an error", fields)
}
