// Package friends is the relationship ledger: the friend-request state
// machine between identities.
package friends

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	dbadapter "github.com/elfcodes808/GoodCord-backend/db"
	"github.com/elfcodes808/GoodCord-backend/identity"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"github.com/elfcodes808/GoodCord-backend/validate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result is returned by SendRequest.
type Result struct {
	Message string            `json:"message"`
	Edge    *model.Friendship `json:"request"`
}

// Response is the payload of a friend_response hook event.
type Response struct {
	ID     int64              `json:"id"`
	From   string             `json:"from"`
	To     string             `json:"to"`
	Status model.FriendStatus `json:"status"`
}

// Ledger owns friend-request edges.
type Ledger struct {
	db       *gorm.DB
	accounts identity.Store
	locks    cache.Cache
	emitter  notify.Emitter
	logger   *zap.Logger
	lockTTL  time.Duration
}

// NewLedger creates a Ledger. locks serialises concurrent requests for the
// same pair.
func NewLedger(db *gorm.DB, accounts identity.Store, locks cache.Cache, emitter notify.Emitter, cfg config.SocialConfig, logger *zap.Logger) *Ledger {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Ledger{db: db, accounts: accounts, locks: locks, emitter: emitter, logger: logger, lockTTL: ttl}
}

// SendRequest records a pending edge from -> to and emits friend_request
// once the edge is stored. The caller's casing is kept for display.
func (l *Ledger) SendRequest(ctx context.Context, from, to string) (res *Result, err error) {
	defer func() { metrics.RecordOutcome("send_friend_request", outcome(err)) }()
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)

	if missing := validate.Missing(map[string]string{"from": from, "to": to}, "from", "to"); len(missing) > 0 {
		return nil, apperr.Validation("Missing from or to", missing...)
	}
	if err := validate.First(
		validate.MaxLength("from", from, validate.MaxUsernameLen),
		validate.MaxLength("to", to, validate.MaxUsernameLen),
	); err != nil {
		return nil, err
	}
	if validate.IsSelfReference(from, to) {
		return nil, apperr.New(apperr.CodeSelfRequest, "Cannot add yourself")
	}

	if _, err := l.accounts.FindByUsername(ctx, to); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Newf(apperr.CodeUnknownRecipient, `User "%s" does not exist.`, to)
		}
		return nil, err
	}

	fromKey, toKey := validate.NormalizeIdentity(from), validate.NormalizeIdentity(to)
	pair := model.PairKey(fromKey, toKey)

	unlock, err := l.lock(ctx, lockKey(fromKey, toKey))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.checkOpen(ctx, fromKey, toKey, to); err != nil {
		return nil, err
	}

	edge := &model.Friendship{
		Requester:    from,
		Requested:    to,
		RequesterKey: fromKey,
		RequestedKey: toKey,
		Status:       model.FriendPending,
		PendingKey:   &pair,
	}
	if err := l.db.WithContext(ctx).Create(edge).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			return nil, alreadySent(to)
		}
		return nil, apperr.Internal(err, "friend request insert failed")
	}

	l.logger.Info("friend request sent", zap.Int64("id", edge.ID), zap.String("from", from), zap.String("to", to))
	l.emitter.Emit(ctx, notify.EventFriendRequest, notify.FriendRequestPayload{From: from, To: to})
	return &Result{Message: "Friend request sent to " + to + ".", Edge: edge}, nil
}

func alreadySent(to string) error {
	return apperr.New(apperr.CodeDuplicateRequest, "Friend request already sent to "+to+".")
}

// checkOpen rejects a request when the same pending edge exists or the two
// identities are already friends. Declined edges do not block a new request.
func (l *Ledger) checkOpen(ctx context.Context, fromKey, toKey, to string) error {
	var edges []model.Friendship
	err := l.db.WithContext(ctx).
		Where("(requester_key = ? AND requested_key = ?) OR (requester_key = ? AND requested_key = ?)", fromKey, toKey, toKey, fromKey).
		Where("status IN ?", []string{string(model.FriendPending), string(model.FriendAccepted)}).
		Find(&edges).Error
	if err != nil {
		return apperr.Internal(err, "friend request lookup failed")
	}
	for _, e := range edges {
		if e.Status == model.FriendAccepted {
			return apperr.New(apperr.CodeDuplicateRequest, "You are already friends with "+to+".")
		}
		if e.RequesterKey == fromKey {
			return alreadySent(to)
		}
	}
	return nil
}

// lockKey names the lock shared by both directions of a pair.
func lockKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "lock:friend:" + a + "|" + b
}

const lockRetry = 20 * time.Millisecond

// lock takes a short-lived cache lock, waiting up to lockTTL for a holder to
// release it.
func (l *Ledger) lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.lockTTL)
	for {
		ok, err := l.locks.SetNX(ctx, key, token, l.lockTTL)
		if err != nil {
			return nil, apperr.Internal(err, "lock unavailable")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, apperr.New(apperr.CodeBusy, "Friend request in progress, try again")
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Internal(ctx.Err(), "lock wait cancelled")
		case <-time.After(lockRetry):
		}
	}
	return func() {
		// Only our own token is removed, in case the TTL expired and the
		// key was taken over.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := l.locks.CompareAndDelete(rctx, key, token); err != nil {
			l.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// Respond accepts or declines the pending request id. Only the requested
// identity may respond.
func (l *Ledger) Respond(ctx context.Context, id int64, responder string, accept bool) (edge *model.Friendship, err error) {
	op := "decline_friend_request"
	if accept {
		op = "accept_friend_request"
	}
	defer func() { metrics.RecordOutcome(op, outcome(err)) }()

	if validate.NormalizeIdentity(responder) == "" {
		return nil, apperr.Validation("Missing username", "username")
	}

	var e model.Friendship
	err = l.db.WithContext(ctx).Where("id = ? AND status = ?", id, model.FriendPending).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "Friend request not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "friend request lookup failed")
	}
	if e.RequestedKey != validate.NormalizeIdentity(responder) {
		return nil, apperr.New(apperr.CodeForbidden, "Only the recipient can respond to this request")
	}

	unlock, err := l.lock(ctx, lockKey(e.RequesterKey, e.RequestedKey))
	if err != nil {
		return nil, err
	}
	defer unlock()

	status := model.FriendDeclined
	if accept {
		status = model.FriendAccepted
	}
	settled := map[string]interface{}{"status": status, "pending_key": nil, "updated_at": time.Now()}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if accept {
			var friends int64
			if err := tx.Model(&model.Friendship{}).
				Where("((requester_key = ? AND requested_key = ?) OR (requester_key = ? AND requested_key = ?)) AND status = ?",
					e.RequesterKey, e.RequestedKey, e.RequestedKey, e.RequesterKey, model.FriendAccepted).
				Count(&friends).Error; err != nil {
				return apperr.Internal(err, "friend lookup failed")
			}
			if friends > 0 {
				return apperr.New(apperr.CodeDuplicateRequest, "You are already friends with "+e.Requester+".")
			}
		}

		res := tx.Model(&model.Friendship{}).Where("id = ? AND status = ?", id, model.FriendPending).Updates(settled)
		if res.Error != nil {
			return apperr.Internal(res.Error, "friend request update failed")
		}
		if res.RowsAffected == 0 {
			// Settled concurrently.
			return apperr.New(apperr.CodeNotFound, "Friend request not found")
		}
		if !accept {
			return nil
		}
		// The opposite pending request is superseded by the friendship.
		if err := tx.Model(&model.Friendship{}).
			Where("requester_key = ? AND requested_key = ? AND status = ?", e.RequestedKey, e.RequesterKey, model.FriendPending).
			Updates(map[string]interface{}{"status": model.FriendDeclined, "pending_key": nil, "updated_at": time.Now()}).Error; err != nil {
			return apperr.Internal(err, "friend request update failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Status = status
	e.PendingKey = nil

	l.logger.Info("friend request answered", zap.Int64("id", id), zap.String("status", string(status)))
	l.emitter.Emit(ctx, hook.OnFriendResponse, Response{ID: e.ID, From: e.Requester, To: e.Requested, Status: status})
	return &e, nil
}

// ListPending returns the requests waiting for username's answer, oldest first.
func (l *Ledger) ListPending(ctx context.Context, username string) ([]model.Friendship, error) {
	edges := make([]model.Friendship, 0)
	err := l.db.WithContext(ctx).
		Where("requested_key = ? AND status = ?", validate.NormalizeIdentity(username), model.FriendPending).
		Order("id").Find(&edges).Error
	if err != nil {
		return nil, apperr.Internal(err, "friend request list failed")
	}
	return edges, nil
}

// ListFriends returns the display names of everyone username is friends
// with, sorted case-insensitively.
func (l *Ledger) ListFriends(ctx context.Context, username string) ([]string, error) {
	key := validate.NormalizeIdentity(username)
	var edges []model.Friendship
	err := l.db.WithContext(ctx).
		Where("(requester_key = ? OR requested_key = ?) AND status = ?", key, key, model.FriendAccepted).
		Find(&edges).Error
	if err != nil {
		return nil, apperr.Internal(err, "friend list failed")
	}

	seen := make(map[string]bool, len(edges))
	names := make([]string, 0, len(edges))
	for _, e := range edges {
		other, otherKey := e.Requested, e.RequestedKey
		if e.RequestedKey == key {
			other, otherKey = e.Requester, e.RequesterKey
		}
		if seen[otherKey] {
			continue
		}
		seen[otherKey] = true
		names = append(names, other)
	}
	sort.Slice(names, func(i, j int) bool {
		return validate.NormalizeIdentity(names[i]) < validate.NormalizeIdentity(names[j])
	})
	return names, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.CodeOf(err))
}
