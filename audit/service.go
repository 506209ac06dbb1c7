// Package audit persists domain events to the audit_logs table. Writes are
// batched by a background worker so request handling never waits on them.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/model"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry is one audit record to be written.
type Entry struct {
	TraceID    string
	Username   string
	Action     string
	Payload    interface{}
	Error      string
	IP         string
	DurationMs int
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues entry. When the queue is full the entry is dropped with a
// warning.
func (svc *Service) Log(entry Entry) {
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		Username:   entry.Username,
		Action:     entry.Action,
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			svc.logger.Warn("audit payload not encodable", zap.String("action", entry.Action), zap.Error(err))
		} else {
			record.Payload = datatypes.JSON(raw)
		}
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Events lists the hook events recorded by RegisterHooks.
var Events = []string{
	hook.OnAccountRegistered,
	hook.OnAccountLogin,
	hook.OnAccountPasswordReset,
	hook.OnFriendRequest,
	hook.OnFriendResponse,
	hook.OnGroupCreated,
	hook.OnGroupJoined,
	hook.OnGlobalAnnouncement,
}

// HookName is the name audit hooks are registered under.
const HookName = "audit"

// RegisterHooks records every event in Events. Audit runs last so earlier
// hooks may enrich the payload.
func (svc *Service) RegisterHooks(hc *hook.HookCenter) {
	for _, ev := range Events {
		hc.Register(ev, 1000, HookName, svc.onEvent)
	}
}

func (svc *Service) onEvent(ctx context.Context, event string, data interface{}) (interface{}, error) {
	svc.Log(Entry{
		TraceID:  mw.TraceIDFromContext(ctx),
		Username: actor(data),
		Action:   event,
		Payload:  data,
	})
	return data, nil
}

// actor picks the acting identity out of an event payload.
func actor(data interface{}) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	var probe struct {
		Username string `json:"username"`
		From     string `json:"from"`
		To       string `json:"to"`
		Status   string `json:"status"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	switch {
	case probe.Username != "":
		return probe.Username
	case probe.Status != "":
		// friend_response: the recipient answered.
		return probe.To
	default:
		return probe.From
	}
}

// Recent returns the newest audit rows, optionally filtered by action.
func (svc *Service) Recent(ctx context.Context, action string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	logs := make([]model.AuditLog, 0)
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
