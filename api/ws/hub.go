package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"go.uber.org/zap"
)

// Hub maintains the registry of connected sessions and fans catalog events
// out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[uint64]*Session),
		logger:   logger,
	}
}

// Register adds s and assigns its ID.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.nextID++
	s.ID = h.nextID
	h.sessions[s.ID] = s
	h.mu.Unlock()
	metrics.ObserverConnected("ws", 1)
	h.logger.Debug("ws session registered",
		zap.Uint64("session_id", s.ID),
		zap.String("username", s.Username))
}

// Unregister removes s. Unknown sessions are ignored.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	if ok {
		metrics.ObserverConnected("ws", -1)
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast queues data on every session.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.SendRaw(data)
	}
}

// Relay subscribes to every catalog channel and broadcasts each message as a
// Frame until ctx is done. The subscription is live when Relay returns.
func (h *Hub) Relay(ctx context.Context, ps cache.PubSub) error {
	msgs, unsub, err := ps.Subscribe(ctx, notify.Channels()...)
	if err != nil {
		return err
	}
	go func() {
		defer unsub()
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				data, err := json.Marshal(toFrame(m))
				if err != nil {
					h.logger.Warn("ws frame encode failed", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				h.Broadcast(data)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func toFrame(m *cache.Message) *Frame {
	data := json.RawMessage(m.Payload)
	if !json.Valid(data) {
		data, _ = json.Marshal(m.Payload)
	}
	return &Frame{Event: notify.EventFromChannel(m.Channel), Data: data}
}
