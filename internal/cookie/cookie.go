package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/oauth-demo/internal/envutil"
	"github.com/dgellow/oauth-demo/internal/log"
)

// FlowCookie binds a browser to the pending flow it started
const FlowCookie = "oauth_demo_flow"

// SetFlow sets the flow binding cookie. SameSite=Lax lets it ride along on
// the top-level redirect back from the authorization server.
func SetFlow(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Flow cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// ClearFlow removes the flow cookie
func ClearFlow(w http.ResponseWriter) {
	Clear(w, FlowCookie)
	log.LogTraceWithFields("cookie", "Flow cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetFlow retrieves the flow cookie value
func GetFlow(r *http.Request) (string, error) {
	return Get(r, FlowCookie)
}
