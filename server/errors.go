package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// statusFor maps the shared sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError answers with the status matching err. Client errors carry
// their message and hints; server errors are logged with a stack trace and
// answered generically.
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Errorw(context, logger.FieldError, err.Error(), logger.FieldStack, fmt.Sprintf("%+v", err))
		writeError(w, status, "Internal server error")
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var paramErr *async.ParamError
	if errors.As(err, &paramErr) {
		resp.Kind = string(paramErr.Kind)
		resp.Param = paramErr.Param
	}
	if hint := errors.FlattenHints(err); hint != "" {
		resp.Hints = []string{hint}
	}
	log.Debugw(context, logger.FieldError, err.Error(), "status", status)
	writeJSON(w, status, resp)
}
