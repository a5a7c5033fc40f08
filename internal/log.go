package internal

import (
	"log/slog"
	"net/http"

	"github.com/sebest/xff"
)

// GetRequestLogger returns base annotated with what identifies r in the
// request log.
func GetRequestLogger(base *slog.Logger, r *http.Request, requestID string) *slog.Logger {
	return base.With(
		"request_id", requestID,
		"method", r.Method,
		"path", r.RequestURI,
		"host", r.Host,
		"remote_addr", xff.GetRemoteAddr(r),
		"user_agent", r.UserAgent(),
	)
}
