package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"time"
)

// handlerWriter feeds every line written by a *log.Logger into a slog
// Handler as one record at a fixed level.
type handlerWriter struct {
	h     slog.Handler
	level slog.Level
}

func (w *handlerWriter) Write(buf []byte) (int, error) {
	if !w.h.Enabled(context.Background(), w.level) {
		return len(buf), nil
	}

	// Report the whole buffer as written even though the newline is dropped.
	n := len(buf)
	r := slog.NewRecord(time.Now(), w.level, string(bytes.TrimSuffix(buf, []byte{'\n'})), 0)
	return n, w.h.Handle(context.Background(), r)
}

// StdlibLogger returns a *log.Logger suitable for http.Server.ErrorLog that
// forwards into next. Timestamps come from slog, so the logger has no flags.
func StdlibLogger(next slog.Handler, level slog.Level) *log.Logger {
	return log.New(&handlerWriter{h: next, level: level}, "", 0)
}
