package errors

import (
	stderrors "errors"
	"fmt"
)

/*
Kind classifies a failure so callers can decide whether it crosses a public
boundary or gets absorbed and logged.
*/
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindTransientDependency Kind = "transient_dependency"
	KindBestEffort          Kind = "best_effort"
)

// Sentinels for errors.Is matching.
var (
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrTransientDependency = &Error{Kind: KindTransientDependency, Message: "dependency unavailable"}
	ErrBestEffort          = &Error{Kind: KindBestEffort, Message: "best-effort step failed"}
)

/*
Error carries a Kind, a human readable message and an optional cause.
Two errors match under errors.Is when their kinds are equal, which lets
callers test against the sentinels above.
*/
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (err *Error) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s: %s: %v", err.Kind, err.Message, err.Err)
	}

	return fmt.Sprintf("%s: %s", err.Kind, err.Message)
}

func (err *Error) Unwrap() error {
	return err.Err
}

func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)

	if !ok {
		return false
	}

	return t.Kind == err.Kind
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps cause as a KindTransientDependency error.
func Transient(cause error, format string, args ...any) error {
	return &Error{Kind: KindTransientDependency, Message: fmt.Sprintf(format, args...), Err: cause}
}

// BestEffort wraps cause as a KindBestEffort error.
func BestEffort(cause error, format string, args ...any) error {
	return &Error{Kind: KindBestEffort, Message: fmt.Sprintf(format, args...), Err: cause}
}

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return stderrors.Is(err, ErrValidation)
}

func IsTransient(err error) bool {
	return stderrors.Is(err, ErrTransientDependency)
}

/*
KindOf returns the kind of the first *Error in the chain, or the empty Kind
when err is not part of the taxonomy.
*/
func KindOf(err error) Kind {
	var e *Error

	if stderrors.As(err, &e) {
		return e.Kind
	}

	return ""
}
