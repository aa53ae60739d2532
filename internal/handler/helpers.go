package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/noteimport/internal/middleware"
	"github.com/xxxsen/noteimport/internal/pkg/errcode"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
	"github.com/xxxsen/noteimport/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, msg := classifyError(err)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Int("code", code),
		zap.Error(err),
	)
	response.Error(c, code, msg)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, appErr.ErrUnsupportedFormat):
		return errcode.ErrUnsupportedFormat, err.Error()
	case errors.Is(err, appErr.ErrMalformedExport):
		return errcode.ErrMalformedExport, err.Error()
	case errors.Is(err, appErr.ErrUnparseableFile):
		return errcode.ErrUnparseableFile, err.Error()
	case errors.Is(err, appErr.ErrResourceStorage):
		return errcode.ErrUploadFailed, "resource storage failed"
	case errors.Is(err, appErr.ErrUnauthorized):
		return errcode.ErrUnauthorized, "unauthorized"
	case errors.Is(err, appErr.ErrNotFound):
		return errcode.ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrInvalid):
		return errcode.ErrInvalid, "invalid request"
	case errors.Is(err, appErr.ErrConflict):
		return errcode.ErrConflict, "conflict"
	default:
		return errcode.ErrInternal, "internal error"
	}
}
