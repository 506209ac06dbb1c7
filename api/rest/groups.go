package rest

import (
	"strconv"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/social/groups"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GroupHandler handles group chat and invite endpoints.
type GroupHandler struct {
	registry *groups.Registry
	logger   *zap.Logger
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(registry *groups.Registry, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{registry: registry, logger: logger}
}

type createGroupRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Create handles POST /groups. Use behind OptionalAuth.
func (h *GroupHandler) Create(c *gin.Context) {
	var req createGroupRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	owner, err := bindIdentity(c, "owner", req.Owner)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	out, err := h.registry.Create(c.Request.Context(), req.Name, owner)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"chatId": out.ChatID, "inviteCode": out.InviteCode})
}

type redeemRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

// Redeem handles POST /invites/redeem. Use behind OptionalAuth.
func (h *GroupHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	username, err := bindIdentity(c, "username", req.Username)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	out, err := h.registry.Redeem(c.Request.Context(), req.Code, username)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"chatId": out.ChatID, "joined": out.Joined, "message": out.Message})
}

func chatID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id", "id")
	}
	return id, nil
}

// Detail handles GET /groups/:id. Requires Auth; only members may look.
func (h *GroupHandler) Detail(c *gin.Context) {
	id, err := chatID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	d, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	member, err := h.registry.IsMember(c.Request.Context(), id, mw.GetUsername(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if !member {
		fail(c, h.logger, apperr.New(apperr.CodeForbidden, "Not a member of this group"))
		return
	}
	ok(c, gin.H{"group": d})
}

// Mine handles GET /groups. Requires Auth.
func (h *GroupHandler) Mine(c *gin.Context) {
	chats, err := h.registry.ListForUser(c.Request.Context(), mw.GetUsername(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"groups": chats})
}

// MintInvite handles POST /groups/:id/invites. Requires Auth; owner only.
func (h *GroupHandler) MintInvite(c *gin.Context) {
	id, err := chatID(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	code, err := h.registry.MintInvite(c.Request.Context(), id, mw.GetUsername(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"chatId": id, "inviteCode": code})
}
