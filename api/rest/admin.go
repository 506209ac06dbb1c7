package rest

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	"github.com/elfcodes808/GoodCord-backend/audit"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/scheduler"
	"github.com/elfcodes808/GoodCord-backend/stats"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxAnnouncementLength bounds a broadcast message, in runes.
const MaxAnnouncementLength = 2000

// AdminHandler handles announcements and the admin-only endpoints.
// Routes should be protected by AdminAuth or AnnouncementGate.
type AdminHandler struct {
	emitter   notify.Emitter
	collector *stats.Collector
	sched     *scheduler.Scheduler
	audit     *audit.Service // nil when audit is disabled
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	emitter notify.Emitter,
	collector *stats.Collector,
	sched *scheduler.Scheduler,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{emitter: emitter, collector: collector, sched: sched, audit: auditSvc, logger: logger}
}

// Announce broadcasts a global announcement to every observer.
// POST /announcement
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		fail(c, h.logger, apperr.Validation("Message required", "message"))
		return
	}
	if utf8.RuneCountInString(msg) > MaxAnnouncementLength {
		fail(c, h.logger, apperr.Validation("Message too long", "message"))
		return
	}
	h.emitter.Emit(c.Request.Context(), notify.EventGlobalAnnouncement, msg)
	ok(c, gin.H{"message": "Announcement sent"})
}

// Stats returns the last counts snapshot and the scheduler state.
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	counts, err := h.collector.Read(c.Request.Context())
	if err != nil {
		fail(c, h.logger, apperr.Internal(err, "stats unavailable"))
		return
	}
	ok(c, gin.H{"counts": counts, "tasks": h.sched.Status()})
}

// Audit returns recent audit entries, optionally filtered by action.
// GET /api/admin/audit?action=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		fail(c, h.logger, apperr.New(apperr.CodeNotFound, "audit disabled"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.audit.Recent(c.Request.Context(), c.Query("action"), limit)
	if err != nil {
		fail(c, h.logger, apperr.Internal(err, "audit unavailable"))
		return
	}
	ok(c, gin.H{"entries": entries})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "admin endpoints disabled: set server.admin_key in config",
				"code":    apperr.CodeForbidden,
			})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "unauthorized",
				"code":    apperr.CodeUnauthorized,
			})
			return
		}
		c.Next()
	}
}

// AnnouncementGate lets everyone through when open is set and otherwise
// behaves like AdminAuth.
func AnnouncementGate(open bool, adminKey string) gin.HandlerFunc {
	if open {
		return func(c *gin.Context) { c.Next() }
	}
	return AdminAuth(adminKey)
}
