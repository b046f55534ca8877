package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/oauth-demo/internal/config"
	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/dgellow/oauth-demo/internal/flow"
	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/dgellow/oauth-demo/internal/metrics"
	"github.com/dgellow/oauth-demo/internal/server"
	"github.com/dgellow/oauth-demo/internal/storage"
	"github.com/dgellow/oauth-demo/internal/tokenclient"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// OAuthDemo represents the complete demo client application
type OAuthDemo struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	store      storage.FlowStore
	cleanup    *storage.CleanupManager
	metrics    *metrics.Metrics
}

// NewOAuthDemo creates the application with all dependencies built
func NewOAuthDemo(ctx context.Context, cfg config.Config) (*OAuthDemo, error) {
	redirectURI := cfg.EffectiveRedirectURI()
	log.LogInfoWithFields("oauthdemo", "Building OAuth demo application", map[string]any{
		"baseURL":       cfg.Server.BaseURL,
		"tokenEndpoint": cfg.OAuth.TokenEndpoint,
		"redirectUri":   redirectURI,
		"pkce":          cfg.OAuth.PKCEEnabled(),
		"storage":       string(cfg.Flows.Storage),
	})

	if !cfg.OAuth.PKCEEnabled() {
		log.LogWarnWithFields("oauthdemo", "PKCE is disabled; flows run without a code verifier. This mode is deprecated", nil)
	}

	callbackPath, err := callbackPathOf(redirectURI)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	exchanger, err := tokenclient.New(tokenclient.Options{
		TokenEndpoint: cfg.OAuth.TokenEndpoint,
		ClientID:      cfg.OAuth.Client.ID,
		ClientSecret:  string(cfg.OAuth.Client.Secret),
		RedirectURI:   redirectURI,
		ParamStyle:    tokenclient.ParamStyle(cfg.OAuth.TokenParams),
		Timeout:       cfg.OAuth.ExchangeTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create token client: %w", err)
	}

	bindingKey, err := flowCookieKey(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	manager, err := flow.NewManager(flow.Options{
		ClientID:          cfg.OAuth.Client.ID,
		PKCE:              cfg.OAuth.PKCEEnabled(),
		TTL:               cfg.Flows.TTL,
		AuthorizeEndpoint: cfg.OAuth.AuthorizeEndpoint,
		TokenEndpoint:     cfg.OAuth.TokenEndpoint,
		RedirectURI:       redirectURI,
		Scopes:            cfg.OAuth.Scopes,
		BindingKey:        bindingKey,
		Metrics:           m,
	}, store, exchanger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create flow manager: %w", err)
	}

	handler := buildHTTPHandler(server.NewFlowHandlers(manager), m, callbackPath)

	var cleanup *storage.CleanupManager
	if cfg.Flows.Storage != config.StorageRedis {
		cleanup = storage.NewCleanupManager(store, cfg.Flows.CleanupInterval, m.FlowsExpired)
	}

	return &OAuthDemo{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		store:      store,
		cleanup:    cleanup,
		metrics:    m,
	}, nil
}

// Handler returns the fully routed HTTP handler
func (a *OAuthDemo) Handler() http.Handler {
	return a.handler
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully
func (a *OAuthDemo) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is cancelled or the server fails
func (a *OAuthDemo) RunContext(ctx context.Context) error {
	log.LogInfoWithFields("oauthdemo", "Starting OAuth demo application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	g, gctx := errgroup.WithContext(ctx)

	if a.cleanup != nil {
		a.cleanup.Start(gctx)
	}

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("oauthdemo", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := a.httpServer.Stop(shutdownCtx)
		if err != nil {
			log.LogErrorWithFields("oauthdemo", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
		}
		if a.cleanup != nil {
			<-a.cleanup.Done()
		}
		if cerr := a.store.Close(); cerr != nil {
			log.LogErrorWithFields("oauthdemo", "Failed to close flow store", map[string]any{
				"error": cerr.Error(),
			})
		}

		log.Logf("Application shutdown complete")
		return err
	})

	return g.Wait()
}

// setupStorage creates the flow store named by flows.storage
func setupStorage(ctx context.Context, cfg config.Config) (storage.FlowStore, error) {
	switch cfg.Flows.Storage {
	case config.StorageRedis:
		enc, err := crypto.NewEncryptor([]byte(cfg.Flows.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier encryptor: %w", err)
		}
		rc := cfg.Flows.Redis
		log.LogInfoWithFields("storage", "Using Redis flow storage", map[string]any{
			"addr": rc.Addr,
			"db":   rc.DB,
		})
		return storage.NewRedisFlowStore(ctx, storage.RedisOptions{
			Addr:      rc.Addr,
			Username:  rc.Username,
			Password:  string(rc.Password),
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		}, enc)

	case config.StorageFirestore:
		enc, err := crypto.NewEncryptor([]byte(cfg.Flows.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier encryptor: %w", err)
		}
		fc := cfg.Flows.Firestore
		log.LogInfoWithFields("storage", "Using Firestore flow storage", map[string]any{
			"project":    fc.Project,
			"database":   fc.Database,
			"collection": fc.Collection,
		})
		return storage.NewFirestoreFlowStore(ctx, fc.Project, fc.Database, fc.Collection, enc)

	default:
		log.Logf("Using in-memory flow storage")
		return storage.NewMemoryFlowStore(), nil
	}
}

// flowCookieKey returns the configured cookie key or a random one
func flowCookieKey(cfg config.Config) ([]byte, error) {
	if cfg.Flows.CookieKey != "" {
		return []byte(cfg.Flows.CookieKey), nil
	}
	key, err := crypto.GenerateKey(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookie key: %w", err)
	}
	log.LogWarn("Generated random flow cookie key. Set flows.cookieKey so pending flows survive restarts")
	return key, nil
}

func callbackPathOf(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		return config.DefaultCallbackPath, nil
	}
	return u.Path, nil
}

// buildHTTPHandler wires every route with its middleware
func buildHTTPHandler(flows *server.FlowHandlers, m *metrics.Metrics, callbackPath string) http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, label string, h http.HandlerFunc) {
		mux.Handle(pattern, server.ChainMiddleware(h, server.NewMetricsMiddleware(m, label)))
	}
	route("GET /{$}", "/", flows.StartHandler)
	route("GET "+callbackPath, callbackPath, flows.CallbackHandler)

	mux.Handle("GET /health", server.NewHealthHandler())
	mux.Handle("GET /metrics", m.Handler())

	return server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("http"),
		server.NewLoggerMiddleware("http"),
		server.NewRequestIDMiddleware(),
	)
}
