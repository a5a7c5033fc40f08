package reqlog

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/TecharoHQ/poolhttpd/internal/actorify"
)

type call struct {
	w http.ResponseWriter
	r *http.Request
}

// Serial runs next for one request at a time on a single worker goroutine,
// in arrival order. A slow request holds up every request behind it.
//
// Panics in next would take down the worker, so next must recover them
// (see Recoverer).
func Serial(ctx context.Context, lg *slog.Logger, next http.Handler) http.Handler {
	worker := actorify.New(ctx, func(_ context.Context, c call) (struct{}, error) {
		next.ServeHTTP(c.w, c.r)
		return struct{}{}, nil
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The worker owns w until it replies, so don't give up on a client
		// that went away.
		if _, err := worker.Call(context.WithoutCancel(r.Context()), call{w: w, r: r}); err != nil {
			lg.WarnContext(r.Context(), "request not handled", "method", r.Method, "path", r.RequestURI, "err", err)
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		}
	})
}

// Recoverer turns a panic in next into a 500 for that request alone.
func Recoverer(lg *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			if rec == http.ErrAbortHandler {
				lg.DebugContext(r.Context(), "handler aborted", "method", r.Method, "path", r.RequestURI)
				return
			}

			lg.ErrorContext(r.Context(), "panic while handling request",
				"method", r.Method,
				"path", r.RequestURI,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
