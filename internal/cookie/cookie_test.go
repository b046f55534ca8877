package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFlow(t *testing.T) {
	t.Setenv("OAUTH_DEMO_ENV", "production")

	rec := httptest.NewRecorder()
	SetFlow(rec, "signed-value", 10*time.Minute)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, FlowCookie, c.Name)
	assert.Equal(t, "signed-value", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 600, c.MaxAge)
}

func TestSetFlow_DevIsNotSecure(t *testing.T) {
	t.Setenv("OAUTH_DEMO_ENV", "dev")

	rec := httptest.NewRecorder()
	SetFlow(rec, "signed-value", time.Minute)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.False(t, cookies[0].Secure)
}

func TestClearFlow(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearFlow(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, FlowCookie, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestGetFlow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	_, err := GetFlow(req)
	assert.ErrorIs(t, err, http.ErrNoCookie)

	req.AddCookie(&http.Cookie{Name: FlowCookie, Value: "abc"})
	v, err := GetFlow(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}
