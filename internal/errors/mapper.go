package errors

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// RPCError is the structured error carried inside a socket RPC reply:
// {id, error:{code, message}}.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// New builds an RPCError with an explicit code.
func New(code int, msg string) *RPCError {
	return &RPCError{Code: code, Message: msg}
}

// InvalidArgument reports bad input from the client (code 400).
func InvalidArgument(msg string) *RPCError { return New(400, msg) }

// Forbidden reports an action on a foreign resource (code 403).
func Forbidden(msg string) *RPCError { return New(403, msg) }

// NotFound reports an absent chat/message/profile (code 404).
func NotFound(msg string) *RPCError { return New(404, msg) }

// NotImplemented reports a reserved action (code 501).
func NotImplemented(msg string) *RPCError { return New(501, msg) }

// Map converts repo/infra errors into RPC errors for the socket reply.
// Keeps handlers clean by centralizing error mapping; anything unrecognized
// becomes a 500 so a single action failure never escapes its boundary.
func Map(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr

	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return New(504, "request timed out")

	case errors.Is(err, context.Canceled):
		return New(499, "request was canceled")

	default:
		return New(500, "Internal server error")
	}
}
