// Package logging builds the slog handlers poolhttpd writes its request log
// through.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ParseLevel turns a level name such as "INFO" or "debug+2" into a
// slog.Level. Unknown names yield INFO and a warning on stderr.
func ParseLevel(level string) slog.Level {
	var programLevel slog.Level
	if err := (&programLevel).UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		programLevel = slog.LevelInfo
	}

	return programLevel
}

// Init creates a handler writing to w. Format "text" selects slog's
// key=value output, anything else JSON.
func Init(w io.Writer, level, format string) slog.Handler {
	leveler := &slog.LevelVar{}
	leveler.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     leveler,
	}

	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}

	return slog.NewJSONHandler(w, opts)
}
