package httptransport

import (
	"github.com/gin-gonic/gin"

	platformerrors "refract-server-go/internal/platform/errors"
)

// APIResponse is the JSON envelope for non-image responses. Image bytes
// are written directly; only errors and debug endpoints use it.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data any, message string) {
	if message == "" {
		message = "ok"
	}

	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func RespondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
	})
}

// respondProcessingError maps an error kind to its status code and serves
// the envelope. Internal details never leak; the message is the typed
// error's message, not the cause chain.
func respondProcessingError(c *gin.Context, err error) {
	RespondError(c, platformerrors.HTTPStatus(err), platformerrors.MessageOf(err))
}
