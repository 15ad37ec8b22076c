package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AppError. Handlers map each kind to one HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidArgument
	KindUnauthorized
	KindForbidden
	KindEditWindowExpired
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindEditWindowExpired:
		return "EDIT_WINDOW_EXPIRED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// AppError is the error type returned by services. Code defaults to the
// kind's name but may be narrowed (e.g. "POST_NOT_FOUND").
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, format string, args ...any) *AppError {
	if code == "" {
		code = kind.String()
	}
	return &AppError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *AppError {
	return newError(KindInvalidArgument, "", format, args...)
}

func Unauthorized(format string, args ...any) *AppError {
	return newError(KindUnauthorized, "", format, args...)
}

func Forbidden(format string, args ...any) *AppError {
	return newError(KindForbidden, "", format, args...)
}

func NotFound(code, format string, args ...any) *AppError {
	return newError(KindNotFound, code, format, args...)
}

func Conflict(format string, args ...any) *AppError {
	return newError(KindConflict, "", format, args...)
}

func TooManyRequests(code, format string, args ...any) *AppError {
	return newError(KindTooManyRequests, code, format, args...)
}

func Unavailable(code, format string, args ...any) *AppError {
	return newError(KindUnavailable, code, format, args...)
}

func Internal(format string, args ...any) *AppError {
	return newError(KindInternal, "", format, args...)
}

// Common errors
var (
	ErrPostNotFound      = NotFound("POST_NOT_FOUND", "Post not found")
	ErrCommentNotFound   = NotFound("COMMENT_NOT_FOUND", "Comment not found")
	ErrUserNotFound      = NotFound("USER_NOT_FOUND", "User not found")
	ErrEditWindowExpired = newError(KindEditWindowExpired, "", "Comments can only be edited within %d minutes of posting", int(EditWindow.Minutes()))
	ErrTooManyRequests   = newError(KindTooManyRequests, "", "Too many requests")
)

// KindOf returns the kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
