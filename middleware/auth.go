package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/gin-gonic/gin"
)

const (
	AccountIDKey = "account_id"
	UsernameKey  = "username"
	EmailKey     = "email"
	TokenKey     = "token"
)

// SessionKey is the cache key marking a token as live.
func SessionKey(token string) string {
	return "session:" + token
}

func bearerToken(ctx *gin.Context) (string, bool) {
	header := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

func unauthorized(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}

// authenticate validates tokenStr and the session cache, then stores the
// identity in the Gin context. It aborts the request on failure.
func authenticate(ctx *gin.Context, sec config.SecurityConfig, c cache.Cache, tokenStr string) bool {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		unauthorized(ctx, "invalid token")
		return false
	}

	cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
	if err != nil || !exists {
		unauthorized(ctx, "session expired")
		return false
	}

	ctx.Set(AccountIDKey, claims.AccountID)
	ctx.Set(UsernameKey, claims.Username)
	ctx.Set(EmailKey, claims.Email)
	ctx.Set(TokenKey, tokenStr)
	return true
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr, ok := bearerToken(ctx)
		if !ok {
			unauthorized(ctx, "missing token")
			return
		}
		if authenticate(ctx, sec, c, tokenStr) {
			ctx.Next()
		}
	}
}

// OptionalAuth authenticates when a Bearer token is present and lets
// anonymous requests through. A present but invalid token is rejected.
func OptionalAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr, ok := bearerToken(ctx)
		if !ok {
			ctx.Next()
			return
		}
		if authenticate(ctx, sec, c, tokenStr) {
			ctx.Next()
		}
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetUsername retrieves the authenticated username, or "" when anonymous.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// GetToken retrieves the raw bearer token of an authenticated request.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}

// QueryAuth is Auth for streaming transports that cannot set headers. The
// token is read from the "token" query parameter, falling back to the
// Authorization header.
func QueryAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := ctx.Query("token")
		if tokenStr == "" {
			tokenStr, _ = bearerToken(ctx)
		}
		if tokenStr == "" {
			unauthorized(ctx, "missing token")
			return
		}
		if authenticate(ctx, sec, c, tokenStr) {
			ctx.Next()
		}
	}
}
