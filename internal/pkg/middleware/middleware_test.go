package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snapfeed/pkg/metrics"
	"snapfeed/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, username string, role int) string {
	t.Helper()
	tok, _, err := utils.GenerateToken(testSecret, username, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func viewerEcho(c *gin.Context) {
	c.String(http.StatusOK, Viewer(c))
}

func request(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", AuthMiddleware(testSecret), viewerEcho)

	tests := []struct {
		name     string
		auth     string
		wantCode int
		wantBody string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"bad format", "Token abc", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"valid", bearer(t, "alice", utils.RoleViewer), http.StatusOK, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(r, tt.auth)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalAuth(testSecret), viewerEcho)

	w := request(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = request(r, "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String(), "invalid tokens fall back to anonymous")

	w = request(r, bearer(t, "bob", utils.RoleViewer))
	assert.Equal(t, "bob", w.Body.String())
}

func TestAdminMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", AuthMiddleware(testSecret), AdminMiddleware(), viewerEcho)

	assert.Equal(t, http.StatusForbidden, request(r, bearer(t, "bob", utils.RoleViewer)).Code)
	assert.Equal(t, http.StatusOK, request(r, bearer(t, "ops", utils.RoleAdmin)).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimitMiddleware(NewIPRateLimiter(rate.Limit(0.001), 2)), viewerEcho)

	assert.Equal(t, http.StatusOK, request(r, "").Code)
	assert.Equal(t, http.StatusOK, request(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(r, "").Code)
}

func TestTraceMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", TraceMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, TraceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-trace", w.Body.String())
	assert.Equal(t, "upstream-trace", w.Header().Get("X-Trace-ID"))

	w = request(r, "")
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	assert.Equal(t, w.Header().Get("X-Trace-ID"), w.Body.String())
}

func TestMetricsAndRecovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(RecoveryMiddleware(), MetricsMiddleware(metrics.NewMetricsCollector(reg)))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/", viewerEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	request(r, "")
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	n, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the panicking request is not recorded; one series each for / and unmatched")
}
