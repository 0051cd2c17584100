package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsense/docsense-backend/internal/pkg/apperr"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondAppError maps a coded error to its HTTP status and a client-safe
// body. Internal causes never leak.
func RespondAppError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	c.JSON(apperr.HTTPStatus(code), ErrorEnvelope{
		Error: APIError{
			Code:    string(code),
			Message: apperr.MessageOf(err),
		},
	})
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
