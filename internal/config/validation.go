package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

const missingCookieKeyWarning = "no cookieKey configured; a random key is generated at startup and pending flows do not survive a restart"

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile on in-memory content.
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", SupportedVersionPrefix)
	} else if !strings.HasPrefix(version, SupportedVersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, SupportedVersionPrefix, SupportedVersionPrefix)
	}

	if server, exists := rawConfig["server"]; exists {
		if _, ok := server.(map[string]any); !ok {
			result.addError("server", "server must be an object")
		}
	}

	validateOAuthStructure(rawConfig, result)
	validateFlowsStructure(rawConfig, result)
	validateLoggingStructure(rawConfig, result)

	return result
}

// validateOAuthStructure checks the oauth section
func validateOAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	oauth, ok := rawConfig["oauth"].(map[string]any)
	if !ok {
		result.addError("oauth", "oauth field is required and must be an object")
		return
	}

	client, ok := oauth["client"].(map[string]any)
	if !ok {
		result.addError("oauth.client", "client is required and must be an object with id and secret")
	} else {
		if _, ok := client["id"]; !ok {
			result.addError("oauth.client.id", "client id is required")
		}
		if secret, ok := client["secret"]; !ok {
			result.addError("oauth.client.secret", "client secret is required")
		} else if err := validateEnvVarReference(secret, "client secret", "oauth.client.secret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	if _, ok := oauth["tokenEndpoint"]; !ok {
		result.addError("oauth.tokenEndpoint", "tokenEndpoint is required")
	}

	for _, field := range []string{"tokenEndpoint", "authorizeEndpoint", "redirectUri"} {
		if s, ok := oauth[field].(string); ok {
			if err := validateAbsoluteURL(s); err != nil {
				result.addError("oauth."+field, "%v", err)
			}
		}
	}

	if pkce, exists := oauth["pkce"]; exists {
		b, ok := pkce.(bool)
		switch {
		case !ok:
			result.addError("oauth.pkce", "pkce must be a boolean")
		case !b:
			result.addWarning("oauth.pkce", "pkce is disabled. Hint: the non-PKCE mode is deprecated and kept for authorization servers that reject code_verifier")
		}
	}

	if params, exists := oauth["tokenParams"]; exists {
		s, _ := params.(string)
		if s != string(TokenParamsQuery) && s != string(TokenParamsForm) {
			result.addError("oauth.tokenParams", "tokenParams must be '%s' or '%s', got %v", TokenParamsQuery, TokenParamsForm, params)
		}
	}

	if scopes, exists := oauth["scopes"]; exists {
		list, ok := scopes.([]any)
		if !ok {
			result.addError("oauth.scopes", "scopes must be an array of strings")
		}
		for i, s := range list {
			if _, ok := s.(string); !ok {
				result.addError(fmt.Sprintf("oauth.scopes[%d]", i), "scope must be a string")
			}
		}
	}

	validateDurationField(oauth, "exchangeTimeout", "oauth.exchangeTimeout", result)
}

// validateFlowsStructure checks the flows section
func validateFlowsStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, exists := rawConfig["flows"]
	if !exists {
		result.addWarning("flows.cookieKey", missingCookieKeyWarning)
		return
	}
	flows, ok := raw.(map[string]any)
	if !ok {
		result.addError("flows", "flows must be an object")
		return
	}

	ttl := validateDurationField(flows, "ttl", "flows.ttl", result)
	cleanup := validateDurationField(flows, "cleanupInterval", "flows.cleanupInterval", result)
	if ttl > 0 && cleanup > ttl {
		result.addWarning("flows.cleanupInterval", "cleanupInterval (%v) is longer than ttl (%v); expired flows linger until the next sweep", cleanup, ttl)
	}

	for _, name := range []string{"cookieKey", "encryptionKey"} {
		if value, exists := flows[name]; exists {
			if err := validateEnvVarReference(value, name, "flows."+name); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	}
	if _, exists := flows["cookieKey"]; !exists {
		result.addWarning("flows.cookieKey", missingCookieKeyWarning)
	}

	storage, _ := flows["storage"].(string)
	validStorage := []string{"", string(StorageMemory), string(StorageRedis), string(StorageFirestore)}
	if !slices.Contains(validStorage, storage) {
		result.addError("flows.storage", "storage must be one of memory, redis, firestore, got '%s'", storage)
		return
	}

	if storage == string(StorageRedis) || storage == string(StorageFirestore) {
		if _, exists := flows["encryptionKey"]; !exists {
			result.addError("flows.encryptionKey", "encryptionKey is required when using %s storage", storage)
		}
	}

	switch StorageKind(storage) {
	case StorageRedis:
		redis, ok := flows["redis"].(map[string]any)
		if !ok {
			result.addError("flows.redis", "redis configuration is required when using redis storage")
			return
		}
		if _, ok := redis["addr"]; !ok {
			result.addError("flows.redis.addr", "redis addr is required")
		}
		if password, exists := redis["password"]; exists {
			if err := validateEnvVarReference(password, "redis password", "flows.redis.password"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	case StorageFirestore:
		fs, ok := flows["firestore"].(map[string]any)
		if !ok {
			result.addError("flows.firestore", "firestore configuration is required when using firestore storage")
			return
		}
		if _, ok := fs["project"]; !ok {
			result.addError("flows.firestore.project", "firestore project is required")
		}
	}
}

func validateLoggingStructure(rawConfig map[string]any, result *ValidationResult) {
	logging, ok := rawConfig["logging"].(map[string]any)
	if !ok {
		return
	}
	if format, ok := logging["format"].(string); ok {
		if f := strings.ToLower(format); f != "text" && f != "json" {
			result.addError("logging.format", "format must be 'text' or 'json', got '%s'", format)
		}
	}
	if level, ok := logging["level"].(string); ok {
		switch strings.ToUpper(level) {
		case "ERROR", "WARN", "WARNING", "INFO", "DEBUG", "TRACE":
		default:
			result.addError("logging.level", "unknown level '%s'. Hint: use error, warn, info, debug or trace", level)
		}
	}
}

// validateDurationField returns the parsed duration, or 0 if absent or invalid.
func validateDurationField(section map[string]any, key, path string, result *ValidationResult) time.Duration {
	raw, exists := section[key]
	if !exists {
		return 0
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"30s\" or \"10m\"", key)
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return 0
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", key)
		return 0
	}
	return d
}

// validateEnvVarReference validates that a secret uses an env var reference
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		// Don't echo the plain value back: it is a secret
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax warns about ${VAR} style references anywhere in the config
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
