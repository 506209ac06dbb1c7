// Package notify fans domain events out to in-process hooks and to the
// pub/sub channels the real-time observers listen on.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"go.uber.org/zap"
)

// Public events, delivered to every connected observer.
const (
	EventFriendRequest      = hook.OnFriendRequest
	EventGlobalAnnouncement = hook.OnGlobalAnnouncement
)

// Catalog lists the events observers may receive.
var Catalog = []string{EventFriendRequest, EventGlobalAnnouncement}

// FriendRequestPayload is the body of a friend_request event.
type FriendRequestPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Channel returns the pub/sub channel carrying event.
func Channel(event string) string {
	return "event:" + event
}

// Channels returns the channels of every catalog event.
func Channels() []string {
	out := make([]string, len(Catalog))
	for i, ev := range Catalog {
		out[i] = Channel(ev)
	}
	return out
}

// EventFromChannel is the inverse of Channel.
func EventFromChannel(ch string) string {
	const prefix = "event:"
	if len(ch) > len(prefix) && ch[:len(prefix)] == prefix {
		return ch[len(prefix):]
	}
	return ch
}

func isPublic(event string) bool {
	for _, ev := range Catalog {
		if ev == event {
			return true
		}
	}
	return false
}

// Emitter is fire-and-forget: callers emit after their state change has
// committed and never observe delivery failures.
type Emitter interface {
	Emit(ctx context.Context, event string, payload interface{})
}

// PubSubEmitter runs hooks for every event and publishes catalog events as
// JSON to cache.PubSub.
type PubSubEmitter struct {
	ps      cache.PubSub
	hooks   *hook.HookCenter
	logger  *zap.Logger
	timeout time.Duration
}

// NewPubSubEmitter creates a PubSubEmitter. hooks may be nil.
func NewPubSubEmitter(ps cache.PubSub, hooks *hook.HookCenter, logger *zap.Logger) *PubSubEmitter {
	if hooks == nil {
		hooks = hook.NewHookCenter()
	}
	return &PubSubEmitter{ps: ps, hooks: hooks, logger: logger, timeout: 2 * time.Second}
}

func (e *PubSubEmitter) Emit(ctx context.Context, event string, payload interface{}) {
	// Delivery must not be cut short by the caller finishing its request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if _, err := e.hooks.Trigger(ctx, event, payload); err != nil {
		e.logger.Warn("event hooks failed", zap.String("event", event), zap.Error(err))
	}
	if !isPublic(event) {
		return
	}

	metrics.RecordEvent(event)
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordPublishFailure(event)
		e.logger.Error("event encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := e.ps.Publish(ctx, Channel(event), string(data)); err != nil {
		metrics.RecordPublishFailure(event)
		e.logger.Error("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

// Emitted is one event captured by Recorder.
type Emitted struct {
	Event   string
	Payload interface{}
}

// Recorder is an Emitter that keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
	// OnEmit, when set, runs synchronously inside Emit.
	OnEmit func(ctx context.Context, ev Emitted)
}

func (r *Recorder) Emit(ctx context.Context, event string, payload interface{}) {
	ev := Emitted{Event: event, Payload: payload}
	r.mu.Lock()
	r.events = append(r.events, ev)
	hookFn := r.OnEmit
	r.mu.Unlock()
	if hookFn != nil {
		hookFn(ctx, ev)
	}
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.events...)
}

// Named returns the events called event.
func (r *Recorder) Named(event string) []Emitted {
	var out []Emitted
	for _, ev := range r.Events() {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}
