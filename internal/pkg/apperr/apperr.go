package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a stable, client-visible error class.
type Code string

const (
	CodeBadRequest           Code = "BadRequest"
	CodeUnauthorized         Code = "Unauthorized"
	CodeConversationBusy     Code = "ConversationBusy"
	CodeRetrievalUnavailable Code = "RetrievalUnavailable"
	CodeEmbeddingError       Code = "EmbeddingError"
	CodeLLMUnavailable       Code = "LLMUnavailable"
	CodeRateLimited          Code = "RateLimited"
	CodeInternalError        Code = "InternalError"
)

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the error code, defaulting to InternalError.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae.Code
	}
	return CodeInternalError
}

// MessageOf extracts the client-safe message for err.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae.Message
	}
	return "internal error"
}

// HTTPStatus maps an error code to its HTTP status equivalent.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConversationBusy:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeRetrievalUnavailable, CodeEmbeddingError, CodeLLMUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
