// Package app wires the GoodCord services behind a gin engine. main and the
// integration tests share this wiring.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/elfcodes808/GoodCord-backend/account"
	apirest "github.com/elfcodes808/GoodCord-backend/api/rest"
	"github.com/elfcodes808/GoodCord-backend/api/sse"
	apows "github.com/elfcodes808/GoodCord-backend/api/ws"
	"github.com/elfcodes808/GoodCord-backend/audit"
	"github.com/elfcodes808/GoodCord-backend/cache"
	"github.com/elfcodes808/GoodCord-backend/config"
	"github.com/elfcodes808/GoodCord-backend/identity"
	"github.com/elfcodes808/GoodCord-backend/metrics"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/notify"
	"github.com/elfcodes808/GoodCord-backend/plugin/hook"
	"github.com/elfcodes808/GoodCord-backend/scheduler"
	"github.com/elfcodes808/GoodCord-backend/social/friends"
	"github.com/elfcodes808/GoodCord-backend/social/groups"
	"github.com/elfcodes808/GoodCord-backend/stats"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// App holds the wired services and the HTTP engine.
type App struct {
	Engine    *gin.Engine
	Hooks     *hook.HookCenter
	Emitter   notify.Emitter
	Accounts  *account.Service
	Ledger    *friends.Ledger
	Groups    *groups.Registry
	Audit     *audit.Service // nil when audit.enabled is false
	Stats     *stats.Collector
	Scheduler *scheduler.Scheduler
	Hub       *apows.Hub

	cancel context.CancelFunc
}

// New builds every service on top of an opened database and cache and
// registers all routes. Call Close on shutdown.
func New(cfg *config.Config, db *gorm.DB, c cache.Cache, ps cache.PubSub, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cancel: cancel}

	// ---- Events ----
	a.Hooks = hook.NewHookCenter()
	if cfg.Audit.Enabled {
		a.Audit = audit.New(db, logger)
		a.Audit.RegisterHooks(a.Hooks)
	}
	a.Emitter = notify.NewPubSubEmitter(ps, a.Hooks, logger)

	// ---- Services ----
	store := identity.NewGormStore(db)
	a.Accounts = account.NewService(store, c, cfg.Security, a.Emitter, logger)
	a.Ledger = friends.NewLedger(db, store, c, a.Emitter, cfg.Social, logger)
	a.Groups = groups.NewRegistry(db, a.Emitter, cfg.Social, logger)

	// ---- Periodic Scheduler Tasks ----
	a.Stats = stats.NewCollector(db, c)
	a.Scheduler = scheduler.New(logger)
	interval := cfg.Server.StatsInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.Scheduler.AddTicker("stats_snapshot", interval, true, a.Stats.Snapshot)

	// ---- Observers ----
	a.Hub = apows.NewHub(logger)
	if err := a.Hub.Relay(ctx, ps); err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = a.routes(cfg, c, ps, store, logger)
	return a, nil
}

func (a *App) routes(cfg *config.Config, c cache.Cache, ps cache.PubSub, store identity.Store, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), metrics.Middleware())
	if cfg.Security.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	}

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authH := apirest.NewAuthHandler(a.Accounts, logger)
	userH := apirest.NewUserHandler(store, logger)
	friendH := apirest.NewFriendHandler(a.Ledger, logger)
	groupH := apirest.NewGroupHandler(a.Groups, logger)
	adminH := apirest.NewAdminHandler(a.Emitter, a.Stats, a.Scheduler, a.Audit, logger)
	auth := mw.Auth(cfg.Security, c)

	// ---- Accounts ----
	r.GET("/users", userH.List)
	r.POST("/signup", authH.Signup)
	r.POST("/login", authH.Login)
	r.POST("/reset-password", authH.ResetPassword)
	r.POST("/logout", auth, authH.Logout)
	r.POST("/refresh", auth, authH.Refresh)

	// ---- Social: body identity, bound to the token when one is sent ----
	open := r.Group("", mw.OptionalAuth(cfg.Security, c))
	open.POST("/friend-request", friendH.Send)
	open.POST("/groups", groupH.Create)
	open.POST("/invites/redeem", groupH.Redeem)

	// ---- Social: token identity ----
	member := r.Group("", auth)
	member.GET("/friend-requests/pending", friendH.Pending)
	member.POST("/friend-requests/:id/accept", friendH.Accept)
	member.POST("/friend-requests/:id/decline", friendH.Decline)
	member.GET("/friends", friendH.List)
	member.GET("/groups", groupH.Mine)
	member.GET("/groups/:id", groupH.Detail)
	member.POST("/groups/:id/invites", groupH.MintInvite)

	// ---- Broadcast ----
	r.POST("/announcement", apirest.AnnouncementGate(cfg.Server.OpenAnnouncements, cfg.Server.AdminKey), adminH.Announce)

	adminG := r.Group("/api/admin")
	adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey), mw.IPWhitelist(cfg.Server.AdminAllowIPs))
	adminG.GET("/stats", adminH.Stats)
	adminG.GET("/audit", adminH.Audit)

	// ---- Observers ----
	sseH := sse.NewHandler(ps, logger)
	wsH := apows.NewHandler(a.Hub, apows.NewRouter(logger), cfg.Security, logger)
	r.GET("/sse", mw.QueryAuth(cfg.Security, c), sseH.ServeSSE)
	r.GET("/ws", mw.QueryAuth(cfg.Security, c), wsH.ServeWS)

	return r
}

// Close stops background work. It is safe to call more than once.
func (a *App) Close() {
	a.cancel()
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Audit != nil {
		a.Audit.Stop(context.Background())
	}
}
