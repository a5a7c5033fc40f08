// Command poolhttpd logs every HTTP request it receives and answers GET with
// the pool control form and POST with an acknowledgement.
//
// Usage:
//
//	poolhttpd [flags] [port]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TecharoHQ/poolhttpd"
	"github.com/TecharoHQ/poolhttpd/cmd/poolhttpd/internal/config"
	"github.com/TecharoHQ/poolhttpd/cmd/poolhttpd/internal/entrypoint"
	"github.com/TecharoHQ/poolhttpd/lib/reqlog"
	"github.com/facebookgo/flagenv"
	"github.com/joho/godotenv"
)

var (
	configFname  = flag.String("config", "", "Configuration file (HCL), optional")
	slogLevel    = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	logFormat    = flag.String("log-format", "json", "log line format, json or text")
	metricsBind  = flag.String("metrics-bind", "", "TCP host:port to serve Prometheus metrics on, disabled if empty")
	serial       = flag.Bool("serial", true, "if true, handle one request at a time")
	maxBodyBytes = flag.Int64("max-body-bytes", reqlog.DefaultMaxBodyBytes, "largest Content-Length accepted for POST")
	versionFlag  = flag.Bool("version", false, "if true, show version information then quit")
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "can't load .env: %v\n", err)
			os.Exit(1)
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [port]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flagenv.Prefix = "POOLHTTPD_"
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("poolhttpd", poolhttpd.Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := entrypoint.Main(ctx, entrypoint.Options{
		ConfigFname:  *configFname,
		Args:         flag.Args(),
		SlogLevel:    *slogLevel,
		LogFormat:    *logFormat,
		MetricsBind:  *metricsBind,
		Serial:       *serial,
		MaxBodyBytes: *maxBodyBytes,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if errors.Is(err, config.ErrUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}
