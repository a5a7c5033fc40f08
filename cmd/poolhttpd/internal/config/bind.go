package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	ErrCantBindToPort = errors.New("bind: can't bind to host:port")
	ErrInvalidAddress = errors.New("bind: invalid host:port")

	// ErrUsage marks mistakes on the command line.
	ErrUsage       = errors.New("usage")
	ErrInvalidPort = fmt.Errorf("%w: port must be an integer between 0 and 65535", ErrUsage)
	ErrTooManyArgs = fmt.Errorf("%w: at most one positional argument (the port) is accepted", ErrUsage)
)

type Bind struct {
	HTTP    string `hcl:"http,optional"`
	Metrics string `hcl:"metrics,optional"`
}

func (b *Bind) Valid() error {
	var errs []error

	if err := validAddr(b.HTTP); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}

	if b.Metrics != "" {
		if err := validAddr(b.Metrics); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}

		if b.Metrics == b.HTTP {
			errs = append(errs, fmt.Errorf("%w: metrics and http both use %q", ErrInvalidAddress, b.HTTP))
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	}

	if _, err := ParsePort(port); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	}

	return nil
}

// ParsePort parses the positional port argument.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w, got %q", ErrInvalidPort, s)
	}

	return port, nil
}

// WithPort replaces the port of the HTTP bind address and keeps its host.
func (b *Bind) WithPort(port int) {
	host, _, err := net.SplitHostPort(b.HTTP)
	if err != nil {
		host = ""
	}

	b.HTTP = net.JoinHostPort(host, strconv.Itoa(port))
}

// Listen opens the HTTP listener.
func (b *Bind) Listen() (net.Listener, error) {
	return listen(b.HTTP)
}

// ListenMetrics opens the metrics listener, or returns nil when metrics are
// disabled.
func (b *Bind) ListenMetrics() (net.Listener, error) {
	if b.Metrics == "" {
		return nil, nil
	}

	return listen(b.Metrics)
}

func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrCantBindToPort, addr, err)
	}

	return ln, nil
}
