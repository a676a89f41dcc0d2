// Package apperror defines Bonfire's closed error taxonomy: a stable set of
// wire codes plus a single tagged value type carrying an optional cause and
// structured details. RoomManager and ConnectionServer failures are
// *AppError values, so the ConnectionServer can map them straight onto the
// acknowledgement envelope of spec.md §6 without re-classifying them.
// Storage returns its own *storage.Error, which RoomManager wraps under
// StorageErrorCode.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, wire-visible error identifier.
type Code string

const (
	InvalidInput      Code = "INVALID_INPUT"
	RoomNotFound      Code = "ROOM_NOT_FOUND"
	RoomFull          Code = "ROOM_FULL"
	NotInRoom         Code = "NOT_IN_ROOM"
	Unauthorized      Code = "UNAUTHORIZED"
	InvalidAction     Code = "INVALID_ACTION"
	PlayerJoinFailed  Code = "PLAYER_JOIN_FAILED"
	PlayerNotFound    Code = "PLAYER_NOT_FOUND"
	InvalidGameState  Code = "INVALID_GAME_STATE"
	LimitReached      Code = "LIMIT_REACHED"
	CodeExhaustion    Code = "CODE_EXHAUSTION"
	StorageErrorCode  Code = "STORAGE_ERROR"
	NotImplemented    Code = "NOT_IMPLEMENTED"
	RateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	InternalError     Code = "INTERNAL_ERROR"
)

// HTTPStatus maps a Code onto the HTTP-equivalent status used by the
// administrative surface. Pure function, per spec.md §7.
func (c Code) HTTPStatus() int {
	switch c {
	case InvalidInput, RoomFull, NotInRoom, InvalidAction, PlayerJoinFailed, InvalidGameState:
		return http.StatusBadRequest
	case RoomNotFound, PlayerNotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case RateLimitExceeded:
		return http.StatusTooManyRequests
	case LimitReached, CodeExhaustion, StorageErrorCode, InternalError:
		return http.StatusInternalServerError
	case NotImplemented:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the single tagged error value used across component
// boundaries. Message is always human-readable and safe to surface on an
// acknowledgement; Details is an optional structured payload (e.g. which
// field failed validation).
type AppError struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an *AppError with no details or cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf builds an *AppError with a formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new AppError, preserving it for errors.Is/As.
func Wrap(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// CodeOf extracts the Code from err if it is (or wraps) an *AppError,
// otherwise returns InternalError. Used at the ConnectionServer boundary to
// classify errors returned by external collaborators (e.g. Storage, Game)
// that may not always construct an *AppError themselves.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return InternalError
}

// MessageOf returns a human-readable message for any error, falling back to
// err.Error() when it is not an *AppError.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
