package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgellow/oauth-demo/internal/metrics"
	"github.com/dgellow/oauth-demo/internal/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		incoming   string
		expectKeep bool
	}{
		{
			name:       "generates id when absent",
			incoming:   "",
			expectKeep: false,
		},
		{
			name:       "keeps incoming id",
			incoming:   "req-1234",
			expectKeep: true,
		},
		{
			name:       "replaces oversized id",
			incoming:   strings.Repeat("x", maxRequestIDLength+1),
			expectKeep: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = RequestIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			NewRequestIDMiddleware()(handler).ServeHTTP(rr, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
			if tt.expectKeep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.Len(t, seen, 36)
			}
		})
	}
}

func TestLoggerMiddleware_MasksCodeAndState(t *testing.T) {
	logs := testutil.CaptureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	chained := ChainMiddleware(handler, NewLoggerMiddleware("http"), NewRequestIDMiddleware())

	req := httptest.NewRequest("GET", "/callback?code=secret-code&state=secret-state&extra=1", nil)
	rr := httptest.NewRecorder()
	chained.ServeHTTP(rr, req)

	rec, ok := logs.Find("request")
	require.True(t, ok)
	assert.EqualValues(t, http.StatusTeapot, rec.Attrs["status"])
	assert.EqualValues(t, len("short and stout"), rec.Attrs["bytes"])
	assert.Equal(t, "/callback", rec.Attrs["path"])
	assert.Equal(t, rr.Header().Get(RequestIDHeader), rec.Attrs["request_id"])

	query, _ := rec.Attrs["query"].(string)
	assert.Contains(t, query, "extra=1")
	assert.NotContains(t, query, "secret-code")
	assert.NotContains(t, query, "secret-state")
}

func TestRecoverMiddleware(t *testing.T) {
	logs := testutil.CaptureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	chained := ChainMiddleware(handler, NewRecoverMiddleware("http"), NewLoggerMiddleware("http"))

	rr := httptest.NewRecorder()
	chained.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal_server_error")

	rec, ok := logs.Find("Recovered from panic")
	require.True(t, ok)
	assert.Equal(t, "boom", rec.Attrs["panic"])

	req, ok := logs.Find("request")
	require.True(t, ok)
	assert.EqualValues(t, http.StatusInternalServerError, req.Attrs["status"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()

	ok := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), NewMetricsMiddleware(m, "/"))
	bad := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}), NewMetricsMiddleware(m, "/callback"))

	for range 3 {
		ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}
	bad.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/callback?code=x", nil))

	count, err := promtestutil.GatherAndCount(m.Registry(), "oauth_demo_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `oauth_demo_http_requests_total{code="200",method="GET",route="/"} 3`)
	assert.Contains(t, string(body), `oauth_demo_http_requests_total{code="400",method="GET",route="/callback"} 1`)
}

func TestMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), NewMetricsMiddleware(nil, "/"))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
