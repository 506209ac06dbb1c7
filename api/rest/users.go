package rest

import (
	"net/http"

	"github.com/elfcodes808/GoodCord-backend/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler serves the user directory.
type UserHandler struct {
	store  identity.Store
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(store identity.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{store: store, logger: logger}
}

// List handles GET /users. The body is a bare array of usernames.
func (h *UserHandler) List(c *gin.Context) {
	names, err := h.store.ListUsernames(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, names)
}
