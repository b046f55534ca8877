package tokenclient

import "fmt"

// TokenResponse is the decoded JSON object returned by the token endpoint.
// Fields other than access_token are kept but not interpreted.
type TokenResponse map[string]any

// AccessToken returns the access_token value when present and non-null.
// Non-string values are formatted with fmt.
func (t TokenResponse) AccessToken() (string, bool) {
	v, ok := t["access_token"]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// TokenType returns token_type, or "" when absent
func (t TokenResponse) TokenType() string {
	s, _ := t["token_type"].(string)
	return s
}
