package util

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindConflict   ErrorKind = "CONFLICT"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindBadRequest ErrorKind = "BAD_REQUEST"
	KindInternal   ErrorKind = "INTERNAL"
)

// AppError 业务错误，Kind 决定对外的响应码
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func NewError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func ValidationError(msg string) *AppError { return NewError(KindValidation, msg) }
func NotFoundError(msg string) *AppError   { return NewError(KindNotFound, msg) }
func ConflictError(msg string) *AppError   { return NewError(KindConflict, msg) }
func ForbiddenError(msg string) *AppError  { return NewError(KindForbidden, msg) }
func BadRequestError(msg string) *AppError { return NewError(KindBadRequest, msg) }

// KindOf 返回错误链上第一个 AppError 的 Kind，非业务错误视为 Internal
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrUserNotFound         = NotFoundError("user not found")
	ErrConnectionNotFound   = NotFoundError("connection request not found")
	ErrSelfConnection       = ValidationError("cannot send a connection request to yourself")
	ErrSelfFollow           = ValidationError("cannot follow yourself")
	ErrSelfBlock            = ValidationError("cannot block yourself")
	ErrSelfReport           = ValidationError("cannot report yourself")
	ErrConnectionExists     = ConflictError("a connection or pending request already exists between these users")
	ErrNotRecipient         = ForbiddenError("only the recipient can respond to this request")
	ErrCooldownActive       = ForbiddenError("you cannot send another request to this user yet")
	ErrBlocked              = ForbiddenError("this action is not allowed between these users")
	ErrConnectionNotPending = BadRequestError("connection request is no longer pending")
	ErrConnectionExpired    = BadRequestError("connection request has expired")
	ErrPendingQuotaExceeded = BadRequestError("too many pending connection requests")
	ErrInvalidCursor        = BadRequestError("invalid cursor format")
)
