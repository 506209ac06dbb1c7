// Package identity is the account store: durable mapping from username and
// email to an account, with case-insensitive lookups.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	dbadapter "github.com/elfcodes808/GoodCord-backend/db"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/validate"
	"gorm.io/gorm"
)

// Store is the account persistence contract consumed by the account and
// friends services. Lookups return an apperr.ErrNotFound-matching error when
// no account exists and an internal error on storage failure.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	// FindByEmailOrUsername returns an account matching either value.
	// An email match wins over a username match.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*model.Account, error)
	Create(ctx context.Context, acc *model.Account) error
	UpdatePassword(ctx context.Context, accountID int64, hash string) error
	TouchLogin(ctx context.Context, accountID int64, ip string, at time.Time) error
	ListUsernames(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func errAccountNotFound() error {
	return apperr.New(apperr.CodeNotFound, "User not found")
}

func (s *GormStore) first(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Where(query, args...).Order("id").First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errAccountNotFound()
	}
	if err != nil {
		return nil, apperr.Internal(err, "account lookup failed")
	}
	return &acc, nil
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.first(ctx, "username_key = ?", validate.NormalizeIdentity(username))
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.first(ctx, "email_key = ?", validate.NormalizeIdentity(email))
}

func (s *GormStore) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.Account, error) {
	acc, err := s.FindByEmail(ctx, email)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return acc, err
	}
	return s.FindByUsername(ctx, username)
}

// Create inserts acc, filling the normalized key columns. A collision on
// either key is reported as a duplicate-account error naming which one.
func (s *GormStore) Create(ctx context.Context, acc *model.Account) error {
	acc.UsernameKey = validate.NormalizeIdentity(acc.Username)
	acc.EmailKey = validate.NormalizeIdentity(acc.Email)

	err := s.db.WithContext(ctx).Create(acc).Error
	if err == nil {
		return nil
	}
	if !dbadapter.IsUniqueViolation(err) {
		return apperr.Internal(err, "account create failed")
	}
	if _, ferr := s.FindByEmail(ctx, acc.Email); ferr == nil {
		return apperr.New(apperr.CodeDuplicateAccount, "Email already registered")
	}
	return apperr.New(apperr.CodeDuplicateAccount, "Username already taken")
}

func (s *GormStore) UpdatePassword(ctx context.Context, accountID int64, hash string) error {
	res := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("password_hash", hash)
	if res.Error != nil {
		return apperr.Internal(res.Error, "password update failed")
	}
	if res.RowsAffected == 0 {
		return errAccountNotFound()
	}
	return nil
}

func (s *GormStore) TouchLogin(ctx context.Context, accountID int64, ip string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{"last_login_at": at, "last_login_ip": ip}).Error
	if err != nil {
		return apperr.Internal(err, "login update failed")
	}
	return nil
}

func (s *GormStore) ListUsernames(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	if err := s.db.WithContext(ctx).Model(&model.Account{}).Order("id").Pluck("username", &names).Error; err != nil {
		return nil, apperr.Internal(err, "account list failed")
	}
	return names, nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Account{}).Count(&n).Error; err != nil {
		return 0, apperr.Internal(err, "account count failed")
	}
	return n, nil
}
