// Package account implements signup, login, password reset and the session
// lifecycle on top of the identity store.
package account

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/identity"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"github.com/elfcodes808/GoodCord-backend/validate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const cacheTimeout = 2 * time.Second

// Session is the result of a successful login or refresh.
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Event is the payload of the account_* hook events.
type Event struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	IP        string `json:"ip,omitempty"`
}

// Service owns account credentials and sessions.
type Service struct {
	store   identity.Store
	cache   cache.Cache
	sec     config.SecurityConfig
	emitter notify.Emitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(store identity.Store, c cache.Cache, sec config.SecurityConfig, emitter notify.Emitter, logger *zap.Logger) *Service {
	if sec.JWTTTLH <= 0 {
		sec.JWTTTLH = time.Hour
	}
	return &Service{store: store, cache: c, sec: sec, emitter: emitter, logger: logger, now: time.Now}
}

func (s *Service) hash(password string) (string, error) {
	cost := s.sec.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", apperr.Internal(err, "password hash failed")
	}
	return string(h), nil
}

func checkPassword(password string) error {
	if len(password) > validate.MaxPasswordBytes {
		return apperr.Newf(apperr.CodeValidation, "password must be at most %d bytes", validate.MaxPasswordBytes)
	}
	return nil
}

// Signup registers a new account. Email and username are unique
// case-insensitively; an email collision is reported first.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*model.Account, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	fields := map[string]string{"username": username, "email": email, "password": password}
	if missing := validate.Missing(fields, "username", "email", "password"); len(missing) > 0 {
		return nil, apperr.Validation("Missing fields", missing...)
	}
	if err := validate.First(
		validate.MaxLength("username", username, validate.MaxUsernameLen),
		validate.MaxLength("email", email, validate.MaxEmailLen),
		validate.Email(email),
		checkPassword(password),
	); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		if existing.EmailKey == validate.NormalizeIdentity(email) {
			return nil, apperr.New(apperr.CodeDuplicateAccount, "Email already registered")
		}
		return nil, apperr.New(apperr.CodeDuplicateAccount, "Username already taken")
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	acc := &model.Account{Username: username, Email: email, PasswordHash: hash}
	// Create re-checks both keys, covering a concurrent signup.
	if err := s.store.Create(ctx, acc); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.Int64("account_id", acc.ID), zap.String("username", acc.Username))
	s.emitter.Emit(ctx, hook.OnAccountRegistered, Event{AccountID: acc.ID, Username: acc.Username})
	return acc, nil
}

// Login checks credentials and opens a session. identifier is normally the
// email; a username is accepted too. Unknown identifiers and wrong passwords
// fail identically.
func (s *Service) Login(ctx context.Context, identifier, password, clientIP string) (*Session, error) {
	if missing := validate.Missing(map[string]string{"email": identifier, "password": password}, "email", "password"); len(missing) > 0 {
		return nil, apperr.Validation("Missing fields", missing...)
	}

	acc, err := s.store.FindByEmailOrUsername(ctx, identifier, identifier)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}

	sess, err := s.open(ctx, acc.ID, acc.Username, acc.Email)
	if err != nil {
		return nil, err
	}

	// Best-effort; a failed update must not fail the login.
	if err := s.store.TouchLogin(ctx, acc.ID, clientIP, s.now()); err != nil {
		s.logger.Warn("last login update failed", zap.Int64("account_id", acc.ID), zap.Error(err))
	}
	s.emitter.Emit(ctx, hook.OnAccountLogin, Event{AccountID: acc.ID, Username: acc.Username, IP: clientIP})
	return sess, nil
}

func invalidCredentials() error {
	return apperr.New(apperr.CodeInvalidCredentials, "Invalid credentials")
}

// open signs a token and registers it in the session cache.
func (s *Service) open(ctx context.Context, accountID int64, username, email string) (*Session, error) {
	token, err := mw.GenerateToken(mw.Subject{AccountID: accountID, Username: username, Email: email}, s.sec.JWTSecret, s.sec.JWTTTLH)
	if err != nil {
		return nil, apperr.Internal(err, "token error")
	}
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := s.cache.Set(cctx, mw.SessionKey(token), strconv.FormatInt(accountID, 10), s.sec.JWTTTLH); err != nil {
		return nil, apperr.Internal(err, "session store failed")
	}
	return &Session{Token: token, Username: username}, nil
}

// ResetPassword replaces the password of the account registered under email.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	if missing := validate.Missing(map[string]string{"email": email, "newPassword": newPassword}, "email", "newPassword"); len(missing) > 0 {
		return apperr.Validation("Missing fields", missing...)
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, acc.ID, hash); err != nil {
		return err
	}

	s.logger.Info("password reset", zap.Int64("account_id", acc.ID))
	s.emitter.Emit(ctx, hook.OnAccountPasswordReset, Event{AccountID: acc.ID, Username: acc.Username})
	return nil
}

// Logout ends the session of token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperr.Validation("missing token", "token")
	}
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := s.cache.Del(cctx, mw.SessionKey(token)); err != nil {
		return apperr.Internal(err, "session delete failed")
	}
	return nil
}

// Refresh swaps oldToken for a fresh token carrying the same identity.
func (s *Service) Refresh(ctx context.Context, oldToken string, sub mw.Subject) (*Session, error) {
	if sub.AccountID == 0 {
		return nil, apperr.New(apperr.CodeUnauthorized, "unauthorized")
	}
	if err := s.Logout(ctx, oldToken); err != nil {
		return nil, err
	}
	return s.open(ctx, sub.AccountID, sub.Username, sub.Email)
}
