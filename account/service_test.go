package account

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/identity"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"github.com/elfcodes808/GoodCord-backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var testSec = config.SecurityConfig{
	JWTSecret:  "test-secret",
	JWTTTLH:    time.Hour,
	BcryptCost: bcrypt.MinCost,
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	cache cache.Cache
	rec   *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	rec := &notify.Recorder{}
	return &fixture{
		svc:   NewService(identity.NewGormStore(db), c, testSec, rec, zap.NewNop()),
		db:    db,
		cache: c,
		rec:   rec,
	}
}

func (f *fixture) signup(t *testing.T, username, email, password string) *model.Account {
	t.Helper()
	acc, err := f.svc.Signup(context.Background(), username, email, password)
	require.NoError(t, err)
	return acc
}

func TestSignup_StoresHashAndEmits(t *testing.T) {
	f := newFixture(t)
	acc := f.signup(t, "Alice", "Alice@Example.com", "hunter2")

	assert.NotZero(t, acc.ID)
	assert.Equal(t, "alice", acc.UsernameKey)
	assert.Equal(t, "alice@example.com", acc.EmailKey)
	assert.NotEqual(t, "hunter2", acc.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("hunter2")))

	evs := f.rec.Named(hook.OnAccountRegistered)
	require.Len(t, evs, 1)
	assert.Equal(t, Event{AccountID: acc.ID, Username: "Alice"}, evs[0].Payload)
}

func TestSignup_TrimsDisplayValues(t *testing.T) {
	f := newFixture(t)
	acc := f.signup(t, "  Alice ", " Alice@Example.com\t", "hunter2")

	assert.Equal(t, "Alice", acc.Username)
	assert.Equal(t, "Alice@Example.com", acc.Email)

	var stored model.Account
	require.NoError(t, f.db.First(&stored, acc.ID).Error)
	assert.Equal(t, "Alice", stored.Username)
	assert.Equal(t, "alice", stored.UsernameKey)
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name                      string
		username, email, password string
		msg                       string
	}{
		{"missing all", "", "", "", "Missing fields"},
		{"blank username", "  ", "a@b.c", "pw", "Missing fields"},
		{"bad email", "alice", "alice.example.com", "pw", "Invalid email"},
		{"long username", strings.Repeat("u", 65), "a@b.c", "pw", "username must be at most 64 characters"},
		{"long password", "alice", "a@b.c", strings.Repeat("p", 73), "password must be at most 72 bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Signup(ctx, tc.username, tc.email, tc.password)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tc.msg, apperr.From(err).Message)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&model.Account{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSignup_DuplicatesCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "alice@example.com", "pw")
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, "someone", "ALICE@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrDuplicateAccount)
	assert.Equal(t, "Email already registered", apperr.From(err).Message)

	_, err = f.svc.Signup(ctx, "Alice", "other@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrDuplicateAccount)
	assert.Equal(t, "Username already taken", apperr.From(err).Message)

	// email match is reported even when the username also collides
	_, err = f.svc.Signup(ctx, "ALICE", "alice@EXAMPLE.com", "pw")
	assert.Equal(t, "Email already registered", apperr.From(err).Message)

	assert.Len(t, f.rec.Named(hook.OnAccountRegistered), 1)
}

func TestLogin_Flow(t *testing.T) {
	f := newFixture(t)
	acc := f.signup(t, "Alice", "alice@example.com", "hunter2")
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "ALICE@example.com", "hunter2", "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "Alice", sess.Username)

	claims, err := mw.ParseToken(sess.Token, testSec.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, mw.Subject{AccountID: acc.ID, Username: "Alice", Email: "alice@example.com"}, claims.Identity())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	ok, err := f.cache.Exists(ctx, mw.SessionKey(sess.Token))
	require.NoError(t, err)
	assert.True(t, ok)

	var stored model.Account
	require.NoError(t, f.db.First(&stored, acc.ID).Error)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, "10.0.0.9", stored.LastLoginIP)

	// username works as the identifier too
	_, err = f.svc.Login(ctx, "alice", "hunter2", "")
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "alice@example.com", "hunter2")
	ctx := context.Background()

	for _, tc := range [][2]string{
		{"alice@example.com", "wrong"},
		{"nobody@example.com", "hunter2"},
	} {
		_, err := f.svc.Login(ctx, tc[0], tc[1], "")
		require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
		assert.Equal(t, "Invalid credentials", apperr.From(err).Message)
	}

	_, err := f.svc.Login(ctx, "", "x", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.rec.Named(hook.OnAccountLogin))
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "alice@example.com", "old-pass")
	ctx := context.Background()

	require.NoError(t, f.svc.ResetPassword(ctx, "Alice@Example.com", "new-pass"))

	_, err := f.svc.Login(ctx, "alice@example.com", "old-pass", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "new-pass", "")
	assert.NoError(t, err)
	assert.Len(t, f.rec.Named(hook.OnAccountPasswordReset), 1)
}

func TestResetPassword_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ResetPassword(ctx, "ghost@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "User not found", apperr.From(err).Message)

	err = f.svc.ResetPassword(ctx, "ghost@example.com", "")
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []string{"newPassword"}, apperr.From(err).Fields)
}

func TestLogoutAndRefresh(t *testing.T) {
	f := newFixture(t)
	acc := f.signup(t, "alice", "alice@example.com", "pw")
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "alice@example.com", "pw", "")
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, sess.Token, mw.Subject{AccountID: acc.ID, Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, next.Token)

	old, _ := f.cache.Exists(ctx, mw.SessionKey(sess.Token))
	cur, _ := f.cache.Exists(ctx, mw.SessionKey(next.Token))
	assert.False(t, old)
	assert.True(t, cur)

	require.NoError(t, f.svc.Logout(ctx, next.Token))
	cur, _ = f.cache.Exists(ctx, mw.SessionKey(next.Token))
	assert.False(t, cur)

	assert.ErrorIs(t, f.svc.Logout(ctx, ""), apperr.ErrValidation)
	_, err = f.svc.Refresh(ctx, "x", mw.Subject{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
