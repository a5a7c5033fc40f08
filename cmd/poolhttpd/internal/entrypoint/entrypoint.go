package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/TecharoHQ/poolhttpd/cmd/poolhttpd/internal/config"
	"github.com/TecharoHQ/poolhttpd/lib/logging"
	"github.com/TecharoHQ/poolhttpd/lib/reqlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ShutdownGrace is how long in-flight requests get to finish after an
// interrupt before connections are closed.
const ShutdownGrace = 5 * time.Second

type Options struct {
	ConfigFname  string
	Args         []string
	SlogLevel    string
	LogFormat    string
	MetricsBind  string
	Serial       bool
	MaxBodyBytes int64
}

// Main loads the configuration, binds the listeners and serves until ctx is
// done.
func Main(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigFname)
	if err != nil {
		return err
	}

	if err := cfg.ApplyArgs(opts.Args); err != nil {
		return err
	}

	if opts.MetricsBind != "" {
		cfg.Bind.Metrics = opts.MetricsBind
	}

	// A format from the config file wins over -log-format.
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = opts.LogFormat
	}

	if err := cfg.Valid(); err != nil {
		if opts.ConfigFname == "" {
			return fmt.Errorf("configuration is invalid:\n\n%w", err)
		}
		return fmt.Errorf("configuration file %s is invalid:\n\n%w", opts.ConfigFname, err)
	}

	sink, err := cfg.Logging.Open()
	if err != nil {
		return err
	}
	defer sink.Close()

	level := opts.SlogLevel
	if cfg.Logging.Level != "" {
		level = cfg.Logging.Level
	}
	lg := slog.New(logging.Init(sink, level, cfg.Logging.FormatOrDefault()))

	ln, err := cfg.Bind.Listen()
	if err != nil {
		return err
	}

	metricsLn, err := cfg.Bind.ListenMetrics()
	if err != nil {
		ln.Close()
		return err
	}

	return Serve(ctx, ServeOptions{
		Logger:          lg,
		Listener:        ln,
		MetricsListener: metricsLn,
		Serial:          opts.Serial,
		MaxBodyBytes:    opts.MaxBodyBytes,
	})
}

type ServeOptions struct {
	Logger   *slog.Logger
	Listener net.Listener

	// MetricsListener serves /metrics when not nil.
	MetricsListener net.Listener

	Serial       bool
	MaxBodyBytes int64
}

// Serve runs the request logger on opts.Listener until ctx is done, then
// shuts down gracefully. It returns nil after a shutdown triggered by ctx.
func Serve(ctx context.Context, opts ServeOptions) error {
	lg := opts.Logger

	// The serial worker must outlive Shutdown so in-flight requests finish.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	h, err := reqlog.Handler(workerCtx, reqlog.Options{
		Logger:       lg,
		Serial:       opts.Serial,
		MaxBodyBytes: opts.MaxBodyBytes,
	})
	if err != nil {
		opts.Listener.Close()
		if opts.MetricsListener != nil {
			opts.MetricsListener.Close()
		}
		return err
	}

	servers := []*http.Server{{
		Handler:  h,
		ErrorLog: logging.StdlibLogger(lg.Handler(), slog.LevelError),
	}}
	listeners := []net.Listener{opts.Listener}

	if opts.MetricsListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		servers = append(servers, &http.Server{
			Handler:  mux,
			ErrorLog: logging.StdlibLogger(lg.Handler(), slog.LevelError),
		})
		listeners = append(listeners, opts.MetricsListener)
		lg.Info("serving metrics", "addr", opts.MetricsListener.Addr().String())
	}

	g, gCtx := errgroup.WithContext(ctx)

	lg.Info("starting httpd", "addr", opts.Listener.Addr().String(), "port", port(opts.Listener), "serial", opts.Serial)

	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving on %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				lg.Warn("in-flight requests did not finish in time, closing connections", "err", err)
				errs = append(errs, srv.Close())
			}
		}

		return errors.Join(errs...)
	})

	err = g.Wait()
	lg.Info("stopping httpd")
	return err
}

func port(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}

	return 0
}
