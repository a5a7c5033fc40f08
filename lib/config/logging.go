package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fahedouch/go-logrotate"
)

var (
	ErrMissingValue             = errors.New("config: missing value")
	ErrMissingLoggingFileConfig = errors.New("config.Logging: file sink needs a file block")
	ErrInvalidLoggingSink       = errors.New("config.Logging: invalid sink")
	ErrInvalidLoggingFormat     = errors.New("config.Logging: invalid format")
	ErrInvalidLoggingLevel      = errors.New("config.Logging: invalid level")
	ErrInvalidLoggingFileConfig = errors.New("config.LoggingFileConfig: invalid parameters")
	ErrOutOfRange               = errors.New("config: value out of range")
)

const (
	LogSinkStdio = "stdio"
	LogSinkFile  = "file"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Logging describes where request log lines go and how they look. Empty
// fields fall back to stderr, JSON and the level given on the command line.
type Logging struct {
	Sink   string             `hcl:"sink,optional" json:"sink"`     // "stdio" or "file"
	Level  string             `hcl:"level,optional" json:"level"`   // if set, supersedes the level in flags
	Format string             `hcl:"format,optional" json:"format"` // "json" or "text"
	File   *LoggingFileConfig `hcl:"file,block" json:"file"`
}

// Default leaves Format unset so the -log-format flag can fill it in.
func (Logging) Default() *Logging {
	return &Logging{
		Sink: LogSinkStdio,
	}
}

func (l *Logging) Valid() error {
	var errs []error

	switch l.Sink {
	case "", LogSinkStdio:
	case LogSinkFile:
		if l.File == nil {
			errs = append(errs, ErrMissingLoggingFileConfig)
			break
		}

		if err := l.File.Valid(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: sink %q is unknown to me", ErrInvalidLoggingSink, l.Sink))
	}

	switch l.Format {
	case "", LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("%w: %q is neither %q nor %q", ErrInvalidLoggingFormat, l.Format, LogFormatJSON, LogFormatText))
	}

	if l.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidLoggingLevel, err))
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Open returns the sink log lines are written to. The caller closes it;
// closing the stdio sink leaves stderr open.
func (l *Logging) Open() (io.WriteCloser, error) {
	switch l.Sink {
	case "", LogSinkStdio:
		return nopCloser{os.Stderr}, nil
	case LogSinkFile:
		if l.File == nil {
			return nil, ErrMissingLoggingFileConfig
		}

		return &logrotate.Logger{
			Filename:   l.File.Filename,
			MaxBytes:   l.File.MaxBytes,
			MaxBackups: l.File.MaxBackups,
			MaxAge:     l.File.MaxAge,
			LocalTime:  l.File.UseLocalTime,
			Compress:   l.File.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("%w: sink %q is unknown to me", ErrInvalidLoggingSink, l.Sink)
	}
}

// FormatOrDefault reports the configured format, lower-cased, or JSON.
func (l *Logging) FormatOrDefault() string {
	if l.Format == "" {
		return LogFormatJSON
	}

	return strings.ToLower(l.Format)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type LoggingFileConfig struct {
	Filename     string `hcl:"filename,optional" json:"filename"`
	MaxBackups   int    `hcl:"max_backups,optional" json:"maxBackups"`
	MaxBytes     int64  `hcl:"max_bytes,optional" json:"maxBytes"`
	MaxAge       int    `hcl:"max_age,optional" json:"maxAge"`
	Compress     bool   `hcl:"compress,optional" json:"compress"`
	UseLocalTime bool   `hcl:"local_time,optional" json:"useLocalTime"`
}

func (LoggingFileConfig) Default() *LoggingFileConfig {
	return &LoggingFileConfig{
		Filename:   "./var/poolhttpd.log",
		MaxBackups: 3,
		MaxBytes:   100 << 20,
		MaxAge:     7, // days
		Compress:   true,
	}
}

func (lfc *LoggingFileConfig) Valid() error {
	var errs []error

	if lfc.Zero() {
		errs = append(errs, ErrMissingValue)
	}

	if lfc.Filename == "" {
		errs = append(errs, fmt.Errorf("%w: filename", ErrMissingValue))
	}

	if lfc.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: max bytes %d is negative", ErrOutOfRange, lfc.MaxBytes))
	}

	if lfc.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("%w: max backup count %d is negative", ErrOutOfRange, lfc.MaxBackups))
	}

	if lfc.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("%w: max age %d is negative", ErrOutOfRange, lfc.MaxAge))
	}

	if len(errs) != 0 {
		return errors.Join(append([]error{ErrInvalidLoggingFileConfig}, errs...)...)
	}

	return nil
}

func (lfc LoggingFileConfig) Zero() bool {
	return lfc == LoggingFileConfig{}
}
