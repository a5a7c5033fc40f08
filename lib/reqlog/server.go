// Package reqlog implements the request logger: every GET gets the pool
// control form back, every POST an acknowledgement, and each of them leaves
// exactly one entry in the log.
package reqlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/TecharoHQ/poolhttpd/internal"
	"github.com/TecharoHQ/poolhttpd/lib/poolform"
	"github.com/TecharoHQ/poolhttpd/web"
	"github.com/google/uuid"
)

var (
	// ErrMalformedRequest is wrapped by every 400 the POST handler sends.
	ErrMalformedRequest = errors.New("reqlog: malformed request")
	// ErrBodyTooLarge is wrapped when the declared body exceeds the limit.
	ErrBodyTooLarge     = errors.New("reqlog: request body too large")
)

// DefaultMaxBodyBytes bounds the Content-Length a POST may declare.
const DefaultMaxBodyBytes int64 = 10 << 20

// Options configures a Server.
type Options struct {
	// Logger receives the request log. Required.
	Logger *slog.Logger

	// Form is served for GET. Defaults to web.Form.
	Form string

	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Serial makes Handler run one request at a time.
	Serial bool

	// Now is used to evaluate form run windows. Defaults to time.Now.
	Now func() time.Time
}

// Server answers GET with the form and POST with an acknowledgement.
type Server struct {
	log          *slog.Logger
	form         string
	maxBodyBytes int64
	now          func() time.Time
}

// New returns a Server with defaults filled in for unset Options.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("reqlog: Options.Logger is nil")
	}

	result := &Server{
		log:          opts.Logger,
		form:         opts.Form,
		maxBodyBytes: opts.MaxBodyBytes,
		now:          opts.Now,
	}

	if result.form == "" {
		result.form = web.Form
	}

	if result.maxBodyBytes <= 0 {
		result.maxBodyBytes = DefaultMaxBodyBytes
	}

	if result.now == nil {
		result.now = time.Now
	}

	return result, nil
}

// Handler builds the full handler chain: metrics, optional serialisation
// and panic recovery around a Server. ctx bounds the lifetime of the serial
// worker; cancel it only after the HTTP server has shut down.
func Handler(ctx context.Context, opts Options) (http.Handler, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}

	var h http.Handler = Recoverer(opts.Logger, s)
	if opts.Serial {
		h = Serial(ctx, opts.Logger, h)
	}

	return WithMetrics(h), nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)

	lg := internal.GetRequestLogger(s.log, r, id)
	rec := newRecord(id, r)

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, lg, rec)
	case http.MethodPost:
		s.handlePost(w, r, lg, rec)
	default:
		s.handleUnsupported(w, r, lg)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, lg *slog.Logger, rec *Record) {
	lg.LogAttrs(r.Context(), slog.LevelInfo, "GET request", rec.attrs()...)
	respond(w, s.form)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, lg *slog.Logger, rec *Record) {
	n, err := s.contentLength(r)
	if err != nil {
		s.reject(w, r, lg, err)
		return
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		s.reject(w, r, lg, fmt.Errorf("%w: short body, wanted %d bytes: %w", ErrMalformedRequest, n, err))
		return
	}
	rec.Body = body
	postBodyBytes.Observe(float64(n))

	if sub, err := poolform.Parse(body); err != nil {
		rec.FormError = err
	} else {
		rec.Form = &sub
		rec.Active = sub.Active(s.now())
	}

	lg.LogAttrs(r.Context(), slog.LevelInfo, "POST request", rec.attrs()...)
	respond(w, "POST request for "+rec.Path)
}

// contentLength reads the declared body length. net/http already rejects
// unparsable values and drops the header for chunked bodies, so a missing
// header here covers both "absent" and "chunked". r.ContentLength stands in
// for transports that parse the length but don't keep the header.
func (s *Server) contentLength(r *http.Request) (int64, error) {
	cl := r.Header.Get("Content-Length")
	if cl == "" && r.ContentLength > 0 {
		cl = strconv.FormatInt(r.ContentLength, 10)
	}

	if cl == "" {
		return 0, fmt.Errorf("%w: missing Content-Length", ErrMalformedRequest)
	}

	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedRequest, cl)
	}

	if n > s.maxBodyBytes {
		return 0, fmt.Errorf("%w: %d bytes declared, limit is %d", ErrBodyTooLarge, n, s.maxBodyBytes)
	}

	return n, nil
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, lg *slog.Logger, err error) {
	code, reason := http.StatusBadRequest, "content_length"
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		code, reason = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		reason = "short_body"
	}

	malformedRequests.WithLabelValues(reason).Inc()
	lg.WarnContext(r.Context(), "malformed request", "err", err)
	http.Error(w, err.Error(), code)
}

func (s *Server) handleUnsupported(w http.ResponseWriter, r *http.Request, lg *slog.Logger) {
	lg.WarnContext(r.Context(), "unsupported method")
	w.Header().Set("Allow", "GET, POST")
	http.Error(w, fmt.Sprintf("Unsupported method (%q)", r.Method), http.StatusNotImplemented)
}

func respond(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
