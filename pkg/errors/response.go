package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

/*
ResponseError is the JSON body returned to clients of the HTTP layer.
*/
type ResponseError struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("response error %d: %s", e.Code, e.Message)
}

var (
	ErrInvalidRequest = &ResponseError{Code: http.StatusBadRequest, Kind: KindValidation, Message: "Invalid request"}
	ErrUnknown        = &ResponseError{Code: http.StatusNotFound, Kind: KindNotFound, Message: "Not found"}
	ErrInternal       = &ResponseError{Code: http.StatusInternalServerError, Message: "Internal error"}
	ErrUnavailable    = &ResponseError{Code: http.StatusServiceUnavailable, Kind: KindTransientDependency, Message: "Dependency unavailable"}
	ErrRateLimited    = &ResponseError{Code: http.StatusTooManyRequests, Message: "Too many messages"}
)

// WithMessagef creates a copy of a ResponseError with a formatted message.
func (e *ResponseError) WithMessagef(format string, args ...any) *ResponseError {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

/*
ToResponse maps an error from the taxonomy onto a ResponseError. Internal
details of transient and best-effort failures are not exposed.
*/
func ToResponse(err error) *ResponseError {
	switch KindOf(err) {
	case KindNotFound:
		return ErrUnknown.WithMessagef("%s", messageOf(err))
	case KindValidation:
		return ErrInvalidRequest.WithMessagef("%s", messageOf(err))
	case KindTransientDependency:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

func messageOf(err error) string {
	var e *Error

	if stderrors.As(err, &e) {
		return e.Message
	}

	return err.Error()
}
