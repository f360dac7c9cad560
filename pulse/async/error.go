package async

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"

	"github.com/teranos/waypoint/errors"
)

// ErrorCode classifies why a job failed
type ErrorCode string

const (
	ErrorCodeNone       ErrorCode = ""
	ErrorCodeCancelled  ErrorCode = "cancelled"
	ErrorCodeTimeout    ErrorCode = "timeout"
	ErrorCodePanic      ErrorCode = "panic"
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeNetwork    ErrorCode = "network_error"
	ErrorCodeDatabase   ErrorCode = "database_error"
	ErrorCodeParse      ErrorCode = "parse_error"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeUnknown    ErrorCode = "unknown"
)

// PanicError carries a recovered panic value and the goroutine stack
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newPanicError(v interface{}) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// ClassifyError maps a job failure to an ErrorCode.
// Typed checks come first; message matching catches driver errors that
// arrive unwrapped.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ErrorCodeNone
	}

	var panicErr *PanicError
	var paramErr *ParamError
	var netErr net.Error
	switch {
	case errors.As(err, &panicErr):
		return ErrorCodePanic
	case errors.Is(err, ErrCancelledBeforeStart), errors.Is(err, context.Canceled):
		return ErrorCodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.As(err, &paramErr), errors.IsInvalidRequestError(err):
		return ErrorCodeValidation
	case errors.IsNotFoundError(err):
		return ErrorCodeNotFound
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ErrorCodeTimeout
		}
		return ErrorCodeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network") || strings.Contains(msg, "unexpected status"):
		return ErrorCodeNetwork
	case strings.Contains(msg, "sql") || strings.Contains(msg, "database") ||
		strings.Contains(msg, "constraint failed"):
		return ErrorCodeDatabase
	case strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "invalid character") || strings.Contains(msg, "decode"):
		return ErrorCodeParse
	case strings.Contains(msg, "no such file") || strings.Contains(msg, "not found"):
		return ErrorCodeNotFound
	}
	return ErrorCodeUnknown
}
