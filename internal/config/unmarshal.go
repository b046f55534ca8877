package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr    json.RawMessage `json:"addr"`
		BaseURL json.RawMessage `json:"baseURL"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = parseString(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.BaseURL, err = parseString(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ClientConfig
func (c *ClientConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     json.RawMessage `json:"id"`
		Secret json.RawMessage `json:"secret"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := parseString(raw.ID, "client id")
	if err != nil {
		return err
	}
	c.ID = id

	secret, err := parseString(raw.Secret, "client secret")
	if err != nil {
		return err
	}
	c.Secret = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for OAuthConfig
func (o *OAuthConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Client            ClientConfig    `json:"client"`
		TokenEndpoint     json.RawMessage `json:"tokenEndpoint"`
		AuthorizeEndpoint json.RawMessage `json:"authorizeEndpoint"`
		RedirectURI       json.RawMessage `json:"redirectUri"`
		Scopes            []string        `json:"scopes"`
		PKCE              *bool           `json:"pkce"`
		TokenParams       TokenParamStyle `json:"tokenParams"`
		ExchangeTimeout   string          `json:"exchangeTimeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Client = raw.Client
	o.Scopes = raw.Scopes
	o.PKCE = raw.PKCE
	o.TokenParams = raw.TokenParams

	var err error
	if o.TokenEndpoint, err = parseString(raw.TokenEndpoint, "tokenEndpoint"); err != nil {
		return err
	}
	if o.AuthorizeEndpoint, err = parseString(raw.AuthorizeEndpoint, "authorizeEndpoint"); err != nil {
		return err
	}
	if o.RedirectURI, err = parseString(raw.RedirectURI, "redirectUri"); err != nil {
		return err
	}
	if o.ExchangeTimeout, err = parseDuration(raw.ExchangeTimeout, "exchangeTimeout"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for FlowsConfig
func (f *FlowsConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Storage         StorageKind      `json:"storage"`
		TTL             string           `json:"ttl"`
		CleanupInterval string           `json:"cleanupInterval"`
		CookieKey       json.RawMessage  `json:"cookieKey"`
		EncryptionKey   json.RawMessage  `json:"encryptionKey"`
		Redis           *RedisConfig     `json:"redis"`
		Firestore       *FirestoreConfig `json:"firestore"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Storage = raw.Storage
	f.Redis = raw.Redis
	f.Firestore = raw.Firestore

	var err error
	if f.TTL, err = parseDuration(raw.TTL, "ttl"); err != nil {
		return err
	}
	if f.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval"); err != nil {
		return err
	}

	cookieKey, err := parseString(raw.CookieKey, "cookieKey")
	if err != nil {
		return err
	}
	f.CookieKey = Secret(cookieKey)

	encryptionKey, err := parseString(raw.EncryptionKey, "encryptionKey")
	if err != nil {
		return err
	}
	f.EncryptionKey = Secret(encryptionKey)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for RedisConfig
func (r *RedisConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr      json.RawMessage `json:"addr"`
		Username  json.RawMessage `json:"username"`
		Password  json.RawMessage `json:"password"`
		DB        int             `json:"db"`
		KeyPrefix string          `json:"keyPrefix"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.DB = raw.DB
	r.KeyPrefix = raw.KeyPrefix

	var err error
	if r.Addr, err = parseString(raw.Addr, "redis addr"); err != nil {
		return err
	}
	if r.Username, err = parseString(raw.Username, "redis username"); err != nil {
		return err
	}
	password, err := parseString(raw.Password, "redis password")
	if err != nil {
		return err
	}
	r.Password = Secret(password)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for FirestoreConfig
func (f *FirestoreConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Project    json.RawMessage `json:"project"`
		Database   string          `json:"database"`
		Collection string          `json:"collection"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	project, err := parseString(raw.Project, "firestore project")
	if err != nil {
		return err
	}
	f.Project = project
	f.Database = raw.Database
	f.Collection = raw.Collection
	return nil
}

// applyDefaults fills unset optional values.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.OAuth.TokenParams == "" {
		c.OAuth.TokenParams = TokenParamsQuery
	}
	if c.OAuth.ExchangeTimeout == 0 {
		c.OAuth.ExchangeTimeout = DefaultExchangeTimeout
	}
	if c.Flows.Storage == "" {
		c.Flows.Storage = StorageMemory
	}
	if c.Flows.TTL == 0 {
		c.Flows.TTL = DefaultFlowTTL
	}
	if c.Flows.CleanupInterval == 0 {
		c.Flows.CleanupInterval = DefaultCleanupInterval
	}
	if r := c.Flows.Redis; r != nil && r.KeyPrefix == "" {
		r.KeyPrefix = DefaultRedisKeyPrefix
	}
	if f := c.Flows.Firestore; f != nil {
		if f.Database == "" {
			f.Database = DefaultFirestoreDB
		}
		if f.Collection == "" {
			f.Collection = DefaultFirestoreColl
		}
	}
}

// String summarises the config for startup logs. Secrets are redacted.
func (c Config) String() string {
	return fmt.Sprintf("addr=%s baseURL=%s client=%s tokenEndpoint=%s pkce=%t storage=%s",
		c.Server.Addr, c.Server.BaseURL, c.OAuth.Client.ID, c.OAuth.TokenEndpoint,
		c.OAuth.PKCEEnabled(), c.Flows.Storage)
}
