package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cmsanalytics/api/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var secret = []byte("middleware-secret")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stats", AuthRequired("admin-key", secret, quietLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("auth_subject"))
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	r := newAuthRouter()
	adminToken, err := utils.GenerateJWT(secret, "editor@example.com", utils.RoleAdmin, time.Hour)
	require.NoError(t, err)
	viewerToken, err := utils.GenerateJWT(secret, "viewer@example.com", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		prepare func(*http.Request)
		code    int
		subject string
	}{
		{"API Key", func(r *http.Request) { r.Header.Set("X-API-KEY", "admin-key") }, http.StatusOK, "api-key"},
		{"Wrong API Key", func(r *http.Request) { r.Header.Set("X-API-KEY", "nope") }, http.StatusUnauthorized, ""},
		{"Bearer Token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminToken) }, http.StatusOK, "editor@example.com"},
		{"Cookie Token", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "jwt_token", Value: adminToken}) }, http.StatusOK, "editor@example.com"},
		{"Non Admin Role", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewerToken) }, http.StatusForbidden, ""},
		{"Bad Token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }, http.StatusUnauthorized, ""},
		{"No Credentials", func(r *http.Request) {}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.subject != "" {
				assert.Equal(t, tt.subject, w.Body.String())
			}
		})
	}
}

func TestAuthRequired_EmptyAdminKeyNeverMatches(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stats", AuthRequired("", secret, quietLogger()), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-KEY", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/admin", CORSMiddleware("https://cms.example.com"))
	admin.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	public := r.Group("/public", PublicCORSMiddleware())
	public.POST("/track", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/x", nil))
	assert.Equal(t, "https://cms.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/public/track", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware("https://cms.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(rate.Every(time.Hour), 2)
	r := gin.New()
	r.POST("/track", RateLimitMiddleware(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/track", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"), "buckets are per IP")
}

func TestIPRateLimiter_Evict(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	limiter.GetLimiter("a")
	limiter.GetLimiter("b")

	assert.Equal(t, 0, limiter.Evict(time.Now().Add(-time.Minute)))
	assert.Equal(t, 2, limiter.Evict(time.Now().Add(time.Minute)))
	assert.Empty(t, limiter.ips)
}

func TestIPRateLimiter_StartCleanupStops(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	limiter.GetLimiter("a")

	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(ctx, 10*time.Millisecond, 0)

	assert.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.ips) == 0
	}, time.Second, 10*time.Millisecond)
	cancel()
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 200, hook.LastEntry().Data["status"])

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
