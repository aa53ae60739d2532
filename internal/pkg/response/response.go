package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codeError carries an errcode value into the proxyutil envelope.
type codeError struct {
	code uint32
	msg  string
}

func (e codeError) Error() string {
	return e.msg
}

func (e codeError) Code() uint32 {
	return e.code
}

func NewCodeError(code int, msg string) error {
	return codeError{code: uint32(code), msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error always answers with HTTP 200; the failure is in the body code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, NewCodeError(code, message))
}
