package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/oauth-demo/internal/log"
)

// SupportedVersionPrefix is the config version accepted by Load
const SupportedVersionPrefix = "v0.0.1-DEV_EDITION"

// Load reads the config file, resolves env references, applies defaults and
// validates the result. A missing client id, client secret or token endpoint
// is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	config.applyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks secret fields before env resolution. Secrets must
// come from the environment, never from the file.
func validateRawConfig(rawConfig map[string]any) error {
	oauth, _ := rawConfig["oauth"].(map[string]any)
	client, _ := oauth["client"].(map[string]any)
	if secret, exists := client["secret"]; exists {
		if err := requireEnvRef(secret, "oauth.client.secret"); err != nil {
			return err
		}
	}

	flows, _ := rawConfig["flows"].(map[string]any)
	for _, name := range []string{"cookieKey", "encryptionKey"} {
		if value, exists := flows[name]; exists {
			if err := requireEnvRef(value, "flows."+name); err != nil {
				return err
			}
		}
	}
	if redis, ok := flows["redis"].(map[string]any); ok {
		if password, exists := redis["password"]; exists {
			if err := requireEnvRef(password, "flows.redis.password"); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireEnvRef(value any, name string) error {
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", name)
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateOAuthConfig(&config.OAuth); err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}
	if err := validateFlowsConfig(&config.Flows); err != nil {
		return fmt.Errorf("flows config: %w", err)
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if config.Logging.Level != "" {
		if _, err := log.ParseLevel(config.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	switch strings.ToLower(config.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", config.Logging.Format)
	}
	return nil
}

func validateOAuthConfig(oauth *OAuthConfig) error {
	if oauth.Client.ID == "" {
		return fmt.Errorf("client.id is required")
	}
	if oauth.Client.Secret == "" {
		return fmt.Errorf("client.secret is required")
	}
	if oauth.TokenEndpoint == "" {
		return fmt.Errorf("tokenEndpoint is required")
	}
	if err := validateAbsoluteURL(oauth.TokenEndpoint); err != nil {
		return fmt.Errorf("tokenEndpoint: %w", err)
	}
	if oauth.AuthorizeEndpoint != "" {
		if err := validateAbsoluteURL(oauth.AuthorizeEndpoint); err != nil {
			return fmt.Errorf("authorizeEndpoint: %w", err)
		}
	}
	if oauth.RedirectURI != "" {
		if err := validateAbsoluteURL(oauth.RedirectURI); err != nil {
			return fmt.Errorf("redirectUri: %w", err)
		}
	}
	switch oauth.TokenParams {
	case TokenParamsQuery, TokenParamsForm:
	default:
		return fmt.Errorf("tokenParams must be %q or %q, got %q", TokenParamsQuery, TokenParamsForm, oauth.TokenParams)
	}
	if oauth.ExchangeTimeout < 0 {
		return fmt.Errorf("exchangeTimeout cannot be negative")
	}
	return nil
}

func validateFlowsConfig(flows *FlowsConfig) error {
	if flows.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}
	if flows.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	if flows.CleanupInterval > flows.TTL {
		log.LogWarn("Flow cleanup interval is greater than flow TTL")
	}
	if flows.CookieKey != "" && len(flows.CookieKey) < 32 {
		return fmt.Errorf("cookieKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(flows.CookieKey))
	}

	switch flows.Storage {
	case StorageMemory:
		return nil
	case StorageRedis:
		if flows.Redis == nil || flows.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when using redis storage")
		}
	case StorageFirestore:
		if flows.Firestore == nil || flows.Firestore.Project == "" {
			return fmt.Errorf("firestore.project is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unsupported storage %q (memory, redis or firestore)", flows.Storage)
	}

	if len(flows.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters when using %s storage (got %d). Generate with: openssl rand -base64 32 | head -c 32", flows.Storage, len(flows.EncryptionKey))
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// EffectiveRedirectURI returns the configured redirect URI or the callback
// under the server base URL.
func (c Config) EffectiveRedirectURI() string {
	if c.OAuth.RedirectURI != "" {
		return c.OAuth.RedirectURI
	}
	return strings.TrimSuffix(c.Server.BaseURL, "/") + DefaultCallbackPath
}

// DefaultFile returns the config written by -config-init.
func DefaultFile() map[string]any {
	return map[string]any{
		"version": SupportedVersionPrefix + "_EXPECT_CHANGES",
		"server": map[string]any{
			"addr":    DefaultAddr,
			"baseURL": DefaultBaseURL,
		},
		"oauth": map[string]any{
			"client": map[string]any{
				"id":     map[string]string{"$env": "OAUTH_CLIENT_ID"},
				"secret": map[string]string{"$env": "OAUTH_CLIENT_SECRET"},
			},
			"tokenEndpoint":     "http://localhost:9090/oauth2/token",
			"authorizeEndpoint": "http://localhost:9090/oauth2/authorize",
			"redirectUri":       DefaultBaseURL + DefaultCallbackPath,
			"scopes":            []string{"openid"},
			"pkce":              true,
			"tokenParams":       string(TokenParamsQuery),
			"exchangeTimeout":   DefaultExchangeTimeout.String(),
		},
		"flows": map[string]any{
			"storage":         string(StorageMemory),
			"ttl":             DefaultFlowTTL.String(),
			"cleanupInterval": DefaultCleanupInterval.String(),
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// WriteDefault writes DefaultFile to path
func WriteDefault(path string) error {
	data, err := json.MarshalIndent(DefaultFile(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
