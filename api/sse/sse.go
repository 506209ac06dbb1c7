package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, logger: logger, keepalive: defaultKeepalive}
}

// ServeSSE handles GET /sse?token=<jwt>. Mount behind middleware.QueryAuth.
// Every catalog event is streamed as "event: <name>" with the JSON payload
// as data.
func (h *Handler) ServeSSE(c *gin.Context) {
	ctx := c.Request.Context()
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, notify.Channels()...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "subscribe failed"})
		return
	}
	defer unsub()

	metrics.ObserverConnected("sse", 1)
	defer metrics.ObserverConnected("sse", -1)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", notify.EventFromChannel(msg.Channel), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-ctx.Done():
			h.logger.Debug("sse client gone", zap.String("username", mw.GetUsername(c)))
			return
		}
	}
}
