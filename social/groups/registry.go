// Package groups is the group membership registry: group chats, their
// members and the invite codes that grant membership.
package groups

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"github.com/elfcodes808/GoodCord-backend/validate"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Invite codes are hex encoded, so 5 bytes gives the 10 characters clients
// rely on.
const (
	defaultCodeBytes = 16
	minCodeBytes     = 5
	maxCodeBytes     = 32
	mintAttempts     = 3
)

// Created is returned by Create.
type Created struct {
	ChatID     int64  `json:"chatId"`
	InviteCode string `json:"inviteCode"`
}

// Redeemed is returned by Redeem.
type Redeemed struct {
	ChatID  int64  `json:"chatId"`
	Joined  bool   `json:"joined"`
	Message string `json:"message"`
}

// Detail is a group chat with its members.
type Detail struct {
	model.GroupChat
	Members []model.GroupMember `json:"members"`
}

// Event is the payload of the group_* hook events.
type Event struct {
	ChatID   int64  `json:"chat_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Registry owns group chats, memberships and invites.
type Registry struct {
	db        *gorm.DB
	emitter   notify.Emitter
	logger    *zap.Logger
	codeBytes int
}

// NewRegistry creates a Registry.
func NewRegistry(db *gorm.DB, emitter notify.Emitter, cfg config.SocialConfig, logger *zap.Logger) *Registry {
	n := cfg.InviteCodeBytes
	switch {
	case n == 0:
		n = defaultCodeBytes
	case n < minCodeBytes:
		n = minCodeBytes
	case n > maxCodeBytes:
		n = maxCodeBytes
	}
	return &Registry{db: db, emitter: emitter, logger: logger, codeBytes: n}
}

// Create makes a group chat owned by owner, adds the owner as its first
// member and mints an invite code. The three writes commit together.
func (r *Registry) Create(ctx context.Context, name, owner string) (out *Created, err error) {
	defer func() { metrics.RecordOutcome("create_group", outcome(err)) }()
	name, owner = strings.TrimSpace(name), strings.TrimSpace(owner)

	if missing := validate.Missing(map[string]string{"name": name, "owner": owner}, "name", "owner"); len(missing) > 0 {
		return nil, apperr.Validation("Missing name or owner", missing...)
	}
	if err := validate.First(
		validate.MaxLength("name", name, validate.MaxGroupNameLen),
		validate.MaxLength("owner", owner, validate.MaxUsernameLen),
	); err != nil {
		return nil, err
	}

	chat := &model.GroupChat{Name: name, Owner: owner, OwnerKey: validate.NormalizeIdentity(owner)}
	var code string
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.GroupMember{
			ChatID:      chat.ID,
			Username:    owner,
			UsernameKey: chat.OwnerKey,
		}).Error; err != nil {
			return err
		}
		var err error
		code, err = r.mint(tx, chat.ID, owner)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err, "group create failed")
	}

	r.logger.Info("group created", zap.Int64("chat_id", chat.ID), zap.String("owner", owner))
	r.emitter.Emit(ctx, hook.OnGroupCreated, Event{ChatID: chat.ID, Name: chat.Name, Username: owner})
	return &Created{ChatID: chat.ID, InviteCode: code}, nil
}

// mint inserts a fresh invite for chatID using tx. A code collision is
// skipped with ON CONFLICT DO NOTHING so the surrounding transaction stays
// usable for the retry.
func (r *Registry) mint(tx *gorm.DB, chatID int64, createdBy string) (string, error) {
	for i := 0; i < mintAttempts; i++ {
		code, err := newCode(r.codeBytes)
		if err != nil {
			return "", err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.GroupInvite{
			Code:      code,
			ChatID:    chatID,
			CreatedBy: createdBy,
		})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return code, nil
		}
		r.logger.Warn("invite code collision", zap.Int64("chat_id", chatID), zap.Int("attempt", i+1))
	}
	return "", pkgerrors.Errorf("no unique invite code after %d attempts", mintAttempts)
}

func newCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", pkgerrors.Wrap(err, "read random")
	}
	return hex.EncodeToString(b), nil
}

// Redeem adds username to the group the invite code points at. Redeeming
// again is a successful no-op reporting Joined=false.
func (r *Registry) Redeem(ctx context.Context, code, username string) (out *Redeemed, err error) {
	defer func() { metrics.RecordOutcome("redeem_invite", outcome(err)) }()
	code, username = strings.TrimSpace(code), strings.TrimSpace(username)

	if missing := validate.Missing(map[string]string{"code": code, "username": username}, "code", "username"); len(missing) > 0 {
		return nil, apperr.Validation("Missing code or username", missing...)
	}
	if err := validate.MaxLength("username", username, validate.MaxUsernameLen); err != nil {
		return nil, err
	}

	var inv model.GroupInvite
	err = r.db.WithContext(ctx).Where("code = ?", code).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeInvalidInvite, "Invalid invite code")
	}
	if err != nil {
		return nil, apperr.Internal(err, "invite lookup failed")
	}

	var chat model.GroupChat
	if err := r.db.WithContext(ctx).First(&chat, inv.ChatID).Error; err != nil {
		// An invite always references an existing chat; a miss is corruption.
		return nil, apperr.Internal(err, "group lookup failed")
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.GroupMember{
		ChatID:      chat.ID,
		Username:    username,
		UsernameKey: validate.NormalizeIdentity(username),
	})
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "membership insert failed")
	}
	if res.RowsAffected == 0 {
		return &Redeemed{ChatID: chat.ID, Joined: false, Message: "Already a member of " + chat.Name}, nil
	}

	r.logger.Info("group joined", zap.Int64("chat_id", chat.ID), zap.String("username", username))
	r.emitter.Emit(ctx, hook.OnGroupJoined, Event{ChatID: chat.ID, Name: chat.Name, Username: username})
	return &Redeemed{ChatID: chat.ID, Joined: true, Message: "Joined " + chat.Name}, nil
}

// Get returns a group chat and its members in join order.
func (r *Registry) Get(ctx context.Context, chatID int64) (*Detail, error) {
	var d Detail
	err := r.db.WithContext(ctx).First(&d.GroupChat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "Group not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "group lookup failed")
	}
	d.Members = make([]model.GroupMember, 0)
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("joined_at, username_key").Find(&d.Members).Error; err != nil {
		return nil, apperr.Internal(err, "member list failed")
	}
	return &d, nil
}

// IsMember reports whether username belongs to chatID.
func (r *Registry) IsMember(ctx context.Context, chatID int64, username string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.GroupMember{}).
		Where("chat_id = ? AND username_key = ?", chatID, validate.NormalizeIdentity(username)).
		Count(&n).Error
	if err != nil {
		return false, apperr.Internal(err, "membership lookup failed")
	}
	return n > 0, nil
}

// ListForUser returns the group chats username belongs to, oldest first.
func (r *Registry) ListForUser(ctx context.Context, username string) ([]model.GroupChat, error) {
	chats := make([]model.GroupChat, 0)
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.chat_id = group_chats.id").
		Where("group_members.username_key = ?", validate.NormalizeIdentity(username)).
		Order("group_chats.id").
		Find(&chats).Error
	if err != nil {
		return nil, apperr.Internal(err, "group list failed")
	}
	return chats, nil
}

// MintInvite creates an additional invite code for chatID. Only the owner
// may mint.
func (r *Registry) MintInvite(ctx context.Context, chatID int64, requester string) (code string, err error) {
	defer func() { metrics.RecordOutcome("mint_invite", outcome(err)) }()

	var chat model.GroupChat
	err = r.db.WithContext(ctx).First(&chat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.New(apperr.CodeNotFound, "Group not found")
	}
	if err != nil {
		return "", apperr.Internal(err, "group lookup failed")
	}
	if chat.OwnerKey != validate.NormalizeIdentity(requester) {
		return "", apperr.New(apperr.CodeForbidden, "Only the owner can create invites")
	}

	code, err = r.mint(r.db.WithContext(ctx), chat.ID, chat.Owner)
	if err != nil {
		return "", apperr.Internal(err, "invite create failed")
	}
	return code, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.CodeOf(err))
}
