package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/elfcodes808/GoodCord-backend/apperr"
	mw "github.com/elfcodes808/GoodCord-backend/middleware"
	"github.com/elfcodes808/GoodCord-backend/validate"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Internal causes are logged, never sent.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	e := apperr.From(err)
	status := StatusFor(e.Kind())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		_ = c.Error(err)
	}
	body := gin.H{"success": false, "message": e.Message, "code": e.Code}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// ok writes a success envelope merged with extra.
func ok(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// bindBody decodes a JSON body into dst. An empty body decodes as {} so
// the services report which fields are missing.
func bindBody(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}

// bindIdentity reconciles an identity named in the body with the bearer
// token. Anonymous requests keep the body value; an authenticated caller
// may omit it, but may not act as someone else.
func bindIdentity(c *gin.Context, field, claimed string) (string, error) {
	user := mw.GetUsername(c)
	if user == "" {
		return claimed, nil
	}
	if strings.TrimSpace(claimed) == "" {
		return user, nil
	}
	if !validate.IsSelfReference(claimed, user) {
		return "", apperr.Newf(apperr.CodeForbidden, "%s does not match the signed-in user", field)
	}
	return claimed, nil
}
