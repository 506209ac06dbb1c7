package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testSec = config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)
	return c
}

// liveToken issues a token and registers its session like the login handler does.
func liveToken(t *testing.T, c cache.Cache, username string) string {
	t.Helper()
	tok, err := GenerateToken(Subject{AccountID: 7, Username: username}, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), SessionKey(tok), "7", time.Hour))
	return tok
}

func newProtectedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"account_id": GetAccountID(ctx),
			"username":   GetUsername(ctx),
			"has_token":  GetToken(ctx) != "",
		})
	})
	return r
}

func get(r *gin.Engine, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Rejections(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(Auth(testSec, c))

	// valid JWT whose session was never stored
	orphan, err := GenerateToken(Subject{AccountID: 42}, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Token abc123",
		"garbage token":  "Bearer notavalidtoken",
		"no session":     "Bearer " + orphan,
	}
	for name, header := range cases {
		w := get(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), name)
		assert.Equal(t, false, body["success"], name)
	}
}

func TestAuth_ValidSession(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(Auth(testSec, c))
	tok := liveToken(t, c, "alice")

	w := get(r, "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account_id":7,"username":"alice","has_token":true}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(OptionalAuth(testSec, c))

	w := get(r, "")
	require.Equal(t, http.StatusOK, w.Code, "anonymous passes through")
	assert.JSONEq(t, `{"account_id":0,"username":"","has_token":false}`, w.Body.String())

	w = get(r, "Bearer "+liveToken(t, c, "bob"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"bob"`)

	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer broken").Code)
}

func TestQueryAuth(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(QueryAuth(testSec, c))
	tok := liveToken(t, c, "carol")

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+tok, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"carol"`)

	assert.Equal(t, http.StatusOK, get(r, "Bearer "+tok).Code, "header fallback")
	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}

func TestRecovery_PanicReturns500(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal server error"}`, w.Body.String())
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(TraceID(), Logger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/bad", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/fail", entries[2].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["trace_id"])
}
