package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/dgellow/oauth-demo/internal/devauthz"
	"github.com/dgellow/oauth-demo/internal/envutil"
	"github.com/dgellow/oauth-demo/internal/log"
	"github.com/dgellow/oauth-demo/internal/server"
	"github.com/dgellow/oauth-demo/internal/urlutil"
	"github.com/joho/godotenv"
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":9090", "listen address")
	issuer := flag.String("issuer", "http://localhost:9090", "issuer URL advertised in tokens")
	redirectURIs := flag.String("redirect-uri", "http://localhost:8080/callback", "comma-separated registered redirect URIs")
	scopes := flag.String("scopes", "openid,profile", "comma-separated scopes the client may request")
	subject := flag.String("subject", "demo-user", "subject every authorization is granted for")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "access token lifetime")
	flag.Parse()

	if err := log.Configure("", ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	secret, err := crypto.GenerateKey(32)
	if err != nil {
		log.LogError("Failed to generate signing secret: %v", err)
		os.Exit(1)
	}

	clientID := envutil.GetOr("OAUTH_CLIENT_ID", "demo-client")
	authz, err := devauthz.New(devauthz.Config{
		Issuer:       *issuer,
		ClientID:     clientID,
		ClientSecret: envutil.GetOr("OAUTH_CLIENT_SECRET", "demo-secret"),
		RedirectURIs: splitList(*redirectURIs),
		Scopes:       splitList(*scopes),
		Subject:      *subject,
		TokenTTL:     *tokenTTL,
		Secret:       secret,
	})
	if err != nil {
		log.LogError("Failed to create authorization server: %v", err)
		os.Exit(1)
	}

	handler := server.ChainMiddleware(authz.Handler(),
		server.NewRecoverMiddleware("authz"),
		server.NewLoggerMiddleware("authz"),
		server.NewRequestIDMiddleware(),
	)
	httpServer := server.NewHTTPServer(handler, *addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	authorizeURL, _ := urlutil.JoinPath(*issuer, devauthz.AuthorizePath)
	tokenURL, _ := urlutil.JoinPath(*issuer, devauthz.TokenPath)
	log.LogInfoWithFields("main", "Dev authorization server listening", map[string]any{
		"addr":      *addr,
		"authorize": authorizeURL,
		"token":     tokenURL,
		"clientId":  clientID,
	})

	select {
	case err := <-errCh:
		if err != nil {
			log.LogError("Server error: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			log.LogError("Shutdown error: %v", err)
		}
	}
}
