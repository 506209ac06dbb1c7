package rest

import (
	"strconv"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/social/friends"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FriendHandler handles friend-request endpoints.
type FriendHandler struct {
	ledger *friends.Ledger
	logger *zap.Logger
}

// NewFriendHandler creates a FriendHandler.
func NewFriendHandler(ledger *friends.Ledger, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{ledger: ledger, logger: logger}
}

type friendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Send handles POST /friend-request. Use behind OptionalAuth.
func (h *FriendHandler) Send(c *gin.Context) {
	var req friendRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	from, err := bindIdentity(c, "from", req.From)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	res, err := h.ledger.SendRequest(c.Request.Context(), from, req.To)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"message": res.Message, "id": res.Edge.ID})
}

// Pending handles GET /friend-requests/pending. Requires Auth.
func (h *FriendHandler) Pending(c *gin.Context) {
	edges, err := h.ledger.ListPending(c.Request.Context(), mw.GetUsername(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"requests": edges})
}

// Accept handles POST /friend-requests/:id/accept. Requires Auth.
func (h *FriendHandler) Accept(c *gin.Context) { h.respond(c, true) }

// Decline handles POST /friend-requests/:id/decline. Requires Auth.
func (h *FriendHandler) Decline(c *gin.Context) { h.respond(c, false) }

func (h *FriendHandler) respond(c *gin.Context, accept bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, h.logger, apperr.Validation("invalid id", "id"))
		return
	}
	edge, err := h.ledger.Respond(c.Request.Context(), id, mw.GetUsername(c), accept)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"request": edge})
}

// List handles GET /friends. Requires Auth.
func (h *FriendHandler) List(c *gin.Context) {
	names, err := h.ledger.ListFriends(c.Request.Context(), mw.GetUsername(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"friends": names})
}
