package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"RescueNet/pkg/errors"
)

// Body is the JSON envelope every handler returns.
type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Message: message})
}

// Error maps a coded error to its HTTP status. Unknown errors become 500
// without leaking the internal message.
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := errors.GetMessage(err)
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, Body{Code: code, Message: msg})
}

var statusByCode = map[int]int{
	errors.CodeInvalid:     http.StatusBadRequest,
	errors.CodeNotFound:    http.StatusNotFound,
	errors.CodeConflict:    http.StatusConflict,
	errors.CodeForbidden:   http.StatusForbidden,
	errors.CodeUnavailable: http.StatusServiceUnavailable,
}
