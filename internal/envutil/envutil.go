package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether OAUTH_DEMO_ENV selects development mode, where the
// flow cookie is allowed over plain HTTP
func IsDev() bool {
	env := strings.ToLower(os.Getenv("OAUTH_DEMO_ENV"))
	return env == "development" || env == "dev"
}

// GetOr returns the value of key, or fallback when it is unset or empty
func GetOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
