package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// LogValue implements slog.LogValuer so secrets stay redacted in structured logs
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// TokenParamStyle selects where the token request parameters are sent.
type TokenParamStyle string

const (
	// TokenParamsQuery sends grant parameters in the URL query string of the
	// POST, which is what the authorization servers this client was first
	// written against expect.
	TokenParamsQuery TokenParamStyle = "query"

	// TokenParamsForm sends them as an application/x-www-form-urlencoded body
	// (RFC 6749 section 4.1.3).
	TokenParamsForm TokenParamStyle = "form"
)

// StorageKind selects the pending flow store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageRedis     StorageKind = "redis"
	StorageFirestore StorageKind = "firestore"
)

// Defaults applied when the config leaves a value unset.
const (
	DefaultAddr            = ":8080"
	DefaultBaseURL         = "http://localhost:8080"
	DefaultCallbackPath    = "/callback"
	DefaultFlowTTL         = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
	DefaultExchangeTimeout = 30 * time.Second
	DefaultRedisKeyPrefix  = "oauth-demo:flow:"
	DefaultFirestoreDB     = "(default)"
	DefaultFirestoreColl   = "oauth_demo_flows"
)

// Config is the whole application configuration.
type Config struct {
	Version string        `json:"version"`
	Server  ServerConfig  `json:"server"`
	OAuth   OAuthConfig   `json:"oauth"`
	Flows   FlowsConfig   `json:"flows"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`
}

// ClientConfig holds the OAuth client credentials registered with the
// authorization server
type ClientConfig struct {
	ID     string `json:"id"`
	Secret Secret `json:"secret"`
}

// OAuthConfig describes the authorization server and how to talk to it.
type OAuthConfig struct {
	Client            ClientConfig `json:"client"`
	TokenEndpoint     string       `json:"tokenEndpoint"`
	AuthorizeEndpoint string       `json:"authorizeEndpoint,omitempty"`
	RedirectURI       string       `json:"redirectUri,omitempty"`
	Scopes            []string     `json:"scopes,omitempty"`

	// PKCE is nil when unset; see PKCEEnabled.
	PKCE *bool `json:"pkce,omitempty"`

	TokenParams     TokenParamStyle `json:"tokenParams,omitempty"`
	ExchangeTimeout time.Duration   `json:"exchangeTimeout,omitempty"`
}

// PKCEEnabled reports whether flows use a code verifier. Defaults to true.
func (o OAuthConfig) PKCEEnabled() bool {
	return o.PKCE == nil || *o.PKCE
}

// FlowsConfig configures where pending authorization flows live and for how long.
type FlowsConfig struct {
	Storage         StorageKind   `json:"storage,omitempty"`
	TTL             time.Duration `json:"ttl,omitempty"`
	CleanupInterval time.Duration `json:"cleanupInterval,omitempty"`

	// CookieKey signs the flow cookie. Generated at startup when empty, which
	// invalidates in-flight flows on restart.
	CookieKey Secret `json:"cookieKey,omitempty"`

	// EncryptionKey encrypts code verifiers at rest in redis and firestore.
	EncryptionKey Secret `json:"encryptionKey,omitempty"`

	Redis     *RedisConfig     `json:"redis,omitempty"`
	Firestore *FirestoreConfig `json:"firestore,omitempty"`
}

// RedisConfig configures the redis flow store
type RedisConfig struct {
	Addr      string `json:"addr"`
	Username  string `json:"username,omitempty"`
	Password  Secret `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// FirestoreConfig configures the firestore flow store
type FirestoreConfig struct {
	Project    string `json:"project"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// LoggingConfig overrides LOG_LEVEL and LOG_FORMAT
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// rawConfigValue is a config value after reference resolution
type rawConfigValue struct {
	value   string
	fromEnv bool
}

// ParseConfigValue resolves a value that is either a plain JSON string or an
// {"$env": "VAR"} reference. A reference to an unset variable is an error.
func ParseConfigValue(raw json.RawMessage) (*rawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &rawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &rawConfigValue{value: value, fromEnv: true}, nil
}

// parseString resolves an optional field; nil raw yields "".
func parseString(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

// parseDuration parses an optional Go duration string.
func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
