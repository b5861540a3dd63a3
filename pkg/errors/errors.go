package errors

import (
	"errors"
	"fmt"
)

// CodeError carries the HTTP status an error should surface with.
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

func NewCodeError(code int, message string) *CodeError {
	return &CodeError{Code: code, Message: message}
}

func IsCodeError(err error) bool {
	var codeErr *CodeError
	return errors.As(err, &codeErr)
}

func FromError(err error) *CodeError {
	if err == nil {
		return nil
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr
	}
	return NewCodeError(500, err.Error())
}

var (
	ErrNotFound       = NewCodeError(404, "not found")
	ErrUnauthorized   = NewCodeError(401, "unauthorized")
	ErrForbidden      = NewCodeError(403, "forbidden")
	ErrInternalServer = NewCodeError(500, "internal server error")
)

// Alert pipeline error kinds. Soft failures (heartbeat, blackout,
// forwarding loop) answer 202 with a descriptive body.

func ErrValidation(message string) *CodeError {
	return NewCodeError(400, message)
}

func ErrRejected(message string) *CodeError {
	return NewCodeError(403, message)
}

func ErrRateLimited(message string) *CodeError {
	return NewCodeError(429, message)
}

func ErrHeartbeatReceived(message string) *CodeError {
	return NewCodeError(202, message)
}

func ErrBlackoutPeriod(message string) *CodeError {
	return NewCodeError(202, message)
}

func ErrForwardingLoop(message string) *CodeError {
	return NewCodeError(202, message)
}

func ErrInvalidAction(message string) *CodeError {
	return NewCodeError(409, message)
}

func ErrNoCustomerMatch(message string) *CodeError {
	return NewCodeError(403, message)
}

func ErrConflict(message string) *CodeError {
	return NewCodeError(409, message)
}
