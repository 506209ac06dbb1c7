package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/account"
	"github.com/elfcodes808/GoodCord-backend/api/rest"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/identity"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/social/friends"
	"github.com/elfcodes808/GoodCord-backend/social/groups"
	"github.com/elfcodes808/GoodCord-backend/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour, BcryptCost: 4}

// fixture wires the handlers against an in-memory database.
type fixture struct {
	r        *gin.Engine
	accounts *account.Service
	events   *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	events := &notify.Recorder{}
	store := identity.NewGormStore(db)
	social := config.SocialConfig{InviteCodeBytes: 8, LockTTL: time.Second}

	accounts := account.NewService(store, c, testSec, events, logger)
	authH := rest.NewAuthHandler(accounts, logger)
	userH := rest.NewUserHandler(store, logger)
	friendH := rest.NewFriendHandler(friends.NewLedger(db, store, c, events, social, logger), logger)
	groupH := rest.NewGroupHandler(groups.NewRegistry(db, events, social, logger), logger)

	r := gin.New()
	r.GET("/users", userH.List)
	r.POST("/signup", authH.Signup)
	r.POST("/login", authH.Login)
	r.POST("/reset-password", authH.ResetPassword)
	r.POST("/logout", mw.Auth(testSec, c), authH.Logout)
	open := r.Group("", mw.OptionalAuth(testSec, c))
	open.POST("/friend-request", friendH.Send)
	open.POST("/groups", groupH.Create)
	open.POST("/invites/redeem", groupH.Redeem)
	member := r.Group("", mw.Auth(testSec, c))
	member.GET("/friends", friendH.List)
	member.GET("/groups/:id", groupH.Detail)
	return &fixture{r: r, accounts: accounts, events: events}
}

func (f *fixture) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func (f *fixture) postJSON(path string, body interface{}, token string) *httptest.ResponseRecorder {
	if token == "" {
		return f.do(http.MethodPost, path, body)
	}
	return f.do(http.MethodPost, path, body, "Authorization", "Bearer "+token)
}

// signup registers username and returns a live token for it.
func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()
	w := f.postJSON("/signup", map[string]string{
		"username": username, "email": username + "@example.com", "password": "pass1234",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.postJSON("/login", map[string]string{"email": username, "password": "pass1234"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
