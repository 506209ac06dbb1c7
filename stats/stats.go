// Package stats snapshots table counts into the cache so the admin
// endpoint can read them without touching the database.
package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/model"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// Key is the cache hash holding the latest snapshot.
const Key = "stats"

// Collector computes and stores snapshots.
type Collector struct {
	db    *gorm.DB
	cache cache.Cache
	now   func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(db *gorm.DB, c cache.Cache) *Collector {
	return &Collector{db: db, cache: c, now: time.Now}
}

type counter struct {
	field string
	model interface{}
	where string
	args  []interface{}
}

var counters = []counter{
	{field: "accounts", model: &model.Account{}},
	{field: "friend_requests_pending", model: &model.Friendship{}, where: "status = ?", args: []interface{}{string(model.FriendPending)}},
	{field: "friendships", model: &model.Friendship{}, where: "status = ?", args: []interface{}{string(model.FriendAccepted)}},
	{field: "groups", model: &model.GroupChat{}},
	{field: "memberships", model: &model.GroupMember{}},
	{field: "invites", model: &model.GroupInvite{}},
}

// Snapshot counts every table and writes the result to the Key hash.
// It matches scheduler.TaskFn.
func (c *Collector) Snapshot(ctx context.Context) error {
	fields := make(map[string]string, len(counters)+1)
	for _, ct := range counters {
		q := c.db.WithContext(ctx).Model(ct.model)
		if ct.where != "" {
			q = q.Where(ct.where, ct.args...)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return pkgerrors.Wrapf(err, "count %s", ct.field)
		}
		fields[ct.field] = strconv.FormatInt(n, 10)
	}
	fields["updated_at"] = c.now().UTC().Format(time.RFC3339)
	return pkgerrors.Wrap(c.cache.HSet(ctx, Key, fields), "store snapshot")
}

// Read returns the latest snapshot, or an empty map before the first one.
func (c *Collector) Read(ctx context.Context) (map[string]string, error) {
	m, err := c.cache.HGetAll(ctx, Key)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
