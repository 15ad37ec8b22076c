package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moments/auth"
	"moments/database"
	"moments/mailer"
	"moments/metrics"
	"moments/middleware"
	"moments/otp"
	"moments/services"
	"moments/websocket"
)

const adminEmail = "editor@moments.test"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, authLimit int) *gin.Engine {
	t.Helper()
	log := zap.NewNop()
	posts := database.NewMemoryPostStore()
	users := database.NewMemoryUserStore()
	codes := otp.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = codes.Close() })

	tokens := auth.NewTokenService("routes-secret", time.Hour)
	m := metrics.New()
	hub := websocket.NewHub(tokens, m, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	limiter := middleware.NewIPRateLimiter(authLimit, time.Minute)
	t.Cleanup(limiter.Stop)

	return SetupRouter(Deps{
		Log:            log,
		Tokens:         tokens,
		Posts:          services.NewPostService(posts, hub, log),
		Auth:           services.NewAuthService(users, tokens, codes, mailer.NewLogMailer(log), adminEmail, log),
		Admin:          services.NewAdminService(posts, users),
		Hub:            hub,
		Metrics:        m,
		AuthLimiter:    limiter,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
}

func call(t *testing.T, r http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func signup(t *testing.T, r http.Handler, name, email string) string {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/auth/signup", "", gin.H{"name": name, "email": email, "password": "s3cret-pass"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestHealth(t *testing.T) {
	r := newRouter(t, 10)
	w := call(t, r, http.MethodGet, "/api/health", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestNoRoute(t *testing.T) {
	r := newRouter(t, 10)
	w := call(t, r, http.MethodGet, "/api/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Contains(t, body["message"], "/api/nope")
}

func TestAdminGating(t *testing.T) {
	r := newRouter(t, 10)
	reader := signup(t, r, "Reader", "reader@moments.test")
	editor := signup(t, r, "Editor", adminEmail)
	post := gin.H{"title": "Harmattan mornings", "content": "dust and light"}

	w := call(t, r, http.MethodPost, "/api/posts", "", post)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, r, http.MethodPost, "/api/posts", reader, post)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, r, http.MethodPost, "/api/posts", editor, post)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = call(t, r, http.MethodGet, "/api/admin/stats", reader, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, r, http.MethodGet, "/api/admin/stats", editor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["posts"])
	assert.Equal(t, float64(2), stats["users"])

	w = call(t, r, http.MethodPost, "/api/upload", editor, gin.H{"url": "https://example.com/a.jpg"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReaderFlow(t *testing.T) {
	r := newRouter(t, 10)
	editor := signup(t, r, "Editor", adminEmail)
	reader := signup(t, r, "Reader", "reader@moments.test")

	w := call(t, r, http.MethodPost, "/api/posts", editor, gin.H{"title": "Rainy season", "content": "puddles"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["post"].(map[string]any)["id"].(string)

	w = call(t, r, http.MethodPost, "/api/posts/"+id+"/like", reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["likes"])

	w = call(t, r, http.MethodPost, "/api/posts/"+id+"/comments", reader, gin.H{"comment": "so good"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Reader", decode(t, w)["comment"].(map[string]any)["name"])

	w = call(t, r, http.MethodGet, "/api/posts/suggestions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["posts"], 1)

	w = call(t, r, http.MethodGet, "/api/auth/me", reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reader@moments.test", decode(t, w)["user"].(map[string]any)["email"])
}

func TestAuthRateLimit(t *testing.T) {
	r := newRouter(t, 2)
	body := gin.H{"email": "nobody@moments.test", "password": "whatever"}

	for i := 0; i < 2; i++ {
		w := call(t, r, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := call(t, r, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "TOO_MANY_REQUESTS", decode(t, w)["code"])

	// reads are not limited
	w = call(t, r, http.MethodGet, "/api/posts", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, 10)
	call(t, r, http.MethodGet, "/api/health", "", nil)

	w := call(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "moments_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/api/health"`)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t, 10)
	req := httptest.NewRequest(http.MethodOptions, "/api/posts/abc/like", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRequiresToken(t *testing.T) {
	r := newRouter(t, 10)
	w := call(t, r, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSConfig(t *testing.T) {
	cfg := corsConfig([]string{"*"})
	assert.True(t, cfg.AllowAllOrigins)
	assert.False(t, cfg.AllowCredentials)

	cfg = corsConfig(nil)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowOrigins)
	assert.True(t, cfg.AllowCredentials)
}
