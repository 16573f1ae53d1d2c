package api

import (
	"chat-relay/errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Code: errors.Code(err), Message: err.Error()})
}

// statusOf maps domain errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrRoomNotFound), errors.Is(err, errors.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidPayload), errors.Is(err, errors.ErrUploadRejected):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
