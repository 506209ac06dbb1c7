package rest

import (
	"github.com/elfcodes808/GoodCord-backend/account"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	svc    *account.Service
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *account.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	if _, err := h.svc.Signup(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"message": "User registered"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"token": sess.Token, "username": sess.Username})
}

type resetRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword handles POST /reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if err := bindBody(c, &req); err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.NewPassword); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"message": "Password reset successfully"})
}

// Logout handles POST /logout. Requires Auth.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), mw.GetToken(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"message": "logged out"})
}

// Refresh handles POST /refresh. Requires Auth.
func (h *AuthHandler) Refresh(c *gin.Context) {
	sub := mw.Subject{AccountID: mw.GetAccountID(c), Username: mw.GetUsername(c), Email: c.GetString(mw.EmailKey)}
	sess, err := h.svc.Refresh(c.Request.Context(), mw.GetToken(c), sub)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"token": sess.Token, "username": sess.Username})
}
