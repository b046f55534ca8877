package tokenclient

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/oauth-demo/internal/log"
)

const redacted = "[REDACTED]"

// sensitiveHeaders never appear in logs
var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
}

// sensitiveParams are masked in the logged URL
var sensitiveParams = []string{"code_verifier", "client_secret"}

// LoggingTransport logs each outbound request before it is sent
type LoggingTransport struct {
	next http.RoundTripper
}

// NewLoggingTransport wraps next, or http.DefaultTransport when nil
func NewLoggingTransport(next http.RoundTripper) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &LoggingTransport{next: next}
}

// RoundTrip implements http.RoundTripper
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log.LogInfoWithFields("tokenclient", "Sending token request", map[string]any{
		"method":  req.Method,
		"url":     redactURL(req.URL),
		"headers": redactHeaders(req.Header),
	})

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		log.LogErrorWithFields("tokenclient", "Token request failed", map[string]any{
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return nil, err
	}

	log.LogDebugWithFields("tokenclient", "Token response received", map[string]any{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})
	return resp, nil
}

// redactHeaders returns name=value pairs with credentials masked
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func redactURL(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Redacted()
	}
	q := u.Query()
	changed := false
	for _, p := range sensitiveParams {
		if q.Has(p) {
			q.Set(p, redacted)
			changed = true
		}
	}
	if !changed {
		return u.Redacted()
	}
	clone := *u
	clone.RawQuery = q.Encode()
	return clone.Redacted()
}
