// Package devauthz is a minimal OAuth 2.0 authorization server for running
// the demo locally. It approves every authorization request for a fixed
// subject and issues opaque HMAC access tokens.
package devauthz

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
)

const (
	AuthorizePath = "/oauth2/authorize"
	TokenPath     = "/oauth2/token"
)

// Config configures the dev server and its single client
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURIs []string
	Scopes       []string

	// Subject is the user every authorization is granted for
	Subject  string
	TokenTTL time.Duration

	// Secret signs codes and tokens; at least 32 bytes
	Secret []byte
}

// Server serves the authorize and token endpoints
type Server struct {
	cfg      Config
	store    *Store
	provider fosite.OAuth2Provider
}

// New creates a dev authorization server with cfg's client registered
func New(cfg Config) (*Server, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(cfg.Secret))
	}
	if cfg.Subject == "" {
		cfg.Subject = "demo-user"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}

	client, err := NewConfidentialClient(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURIs, cfg.Scopes)
	if err != nil {
		return nil, err
	}
	store := NewStore()
	store.RegisterClient(client)

	fositeConfig := &fosite.Config{
		AccessTokenIssuer:              cfg.Issuer,
		AccessTokenLifespan:            cfg.TokenTTL,
		AuthorizeCodeLifespan:          10 * time.Minute,
		GlobalSecret:                   cfg.Secret,
		TokenURL:                       cfg.Issuer + TokenPath,
		ScopeStrategy:                  fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy:       fosite.DefaultAudienceMatchingStrategy,
		EnforcePKCE:                    false,
		EnablePKCEPlainChallengeMethod: false,
	}

	provider := compose.Compose(
		fositeConfig,
		store,
		&compose.CommonStrategy{
			CoreStrategy: compose.NewOAuth2HMACStrategy(fositeConfig),
		},
		compose.OAuth2AuthorizeExplicitFactory,
		compose.OAuth2PKCEFactory,
	)

	return &Server{cfg: cfg, store: store, provider: provider}, nil
}

// Handler routes the authorize and token endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AuthorizePath, s.AuthorizeHandler)
	mux.HandleFunc("POST "+TokenPath, s.TokenHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// AuthorizeHandler approves the request without a login step
func (s *Server) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ar, err := s.provider.NewAuthorizeRequest(ctx, r)
	if err != nil {
		log.LogWarnWithFields("devauthz", "Rejected authorize request", map[string]any{
			"error": fosite.ErrorToRFC6749Error(err).ErrorField,
			"hint":  fosite.ErrorToRFC6749Error(err).HintField,
		})
		s.provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	for _, scope := range ar.GetRequestedScopes() {
		ar.GrantScope(scope)
	}

	session := &fosite.DefaultSession{
		Subject: s.cfg.Subject,
		ExpiresAt: map[fosite.TokenType]time.Time{
			fosite.AccessToken: time.Now().Add(s.cfg.TokenTTL),
		},
	}

	response, err := s.provider.NewAuthorizeResponse(ctx, ar, session)
	if err != nil {
		log.LogError("Authorize response error: %v", err)
		s.provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	log.LogInfoWithFields("devauthz", "Authorization granted", map[string]any{
		"clientId": ar.GetClient().GetID(),
		"pkce":     ar.GetRequestForm().Get("code_challenge") != "",
		"scopes":   []string(ar.GetGrantedScopes()),
	})
	s.provider.WriteAuthorizeResponse(ctx, w, ar, response)
}

// TokenHandler issues tokens for authorization codes. Grant parameters may
// arrive in the URL query as well as the form body.
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := mergeQueryIntoForm(r); err != nil {
		s.provider.WriteAccessError(ctx, w, nil, fosite.ErrInvalidRequest.WithHint("Unable to parse request body"))
		return
	}

	session := &fosite.DefaultSession{}
	accessRequest, err := s.provider.NewAccessRequest(ctx, r, session)
	if err != nil {
		rfcErr := fosite.ErrorToRFC6749Error(err)
		log.LogWarnWithFields("devauthz", "Rejected token request", map[string]any{
			"error": rfcErr.ErrorField,
			"hint":  rfcErr.HintField,
		})
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	response, err := s.provider.NewAccessResponse(ctx, accessRequest)
	if err != nil {
		log.LogError("Access response error: %v", err)
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	log.LogInfoWithFields("devauthz", "Access token issued", map[string]any{
		"clientId": accessRequest.GetClient().GetID(),
	})
	s.provider.WriteAccessResponse(ctx, w, accessRequest, response)
}

// mergeQueryIntoForm copies query parameters into PostForm where the body
// does not set them
func mergeQueryIntoForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if r.PostForm == nil {
		r.PostForm = url.Values{}
	}
	for k, v := range r.URL.Query() {
		if !r.PostForm.Has(k) {
			r.PostForm[k] = v
		}
	}
	return nil
}
