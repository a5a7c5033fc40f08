package reqlog

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/TecharoHQ/poolhttpd/lib/poolform"
	"github.com/lum8rjack/go-ja4h"
)

// Record is what gets logged about one request. It lives only as long as
// the request does.
type Record struct {
	ID     string
	Method string
	Path   string
	Host   string
	Header http.Header
	JA4H   string

	// Body is only set for POST.
	Body []byte

	Form      *poolform.Submission
	FormError error
	// Active reports whether the submitted run window contains the time the
	// request was handled. Only meaningful when Form is set.
	Active bool
}

func newRecord(id string, r *http.Request) *Record {
	return &Record{
		ID:     id,
		Method: r.Method,
		Path:   r.RequestURI,
		Host:   r.Host,
		Header: r.Header,
		JA4H:   ja4h.JA4H(r),
	}
}

// HeaderDump renders the headers one "Name: value" per line, Host first
// and the rest sorted by name, with a trailing blank line.
func (rec *Record) HeaderDump() string {
	var sb strings.Builder

	if rec.Host != "" {
		sb.WriteString("Host: ")
		sb.WriteString(rec.Host)
		sb.WriteByte('\n')
	}

	keys := make([]string, 0, len(rec.Header))
	for k := range rec.Header {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, v := range rec.Header[k] {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteByte('\n')
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

// BodyText is the body decoded as UTF-8; invalid sequences become U+FFFD.
func (rec *Record) BodyText() string {
	return strings.ToValidUTF8(string(rec.Body), "\uFFFD")
}

func (rec *Record) attrs() []slog.Attr {
	result := []slog.Attr{
		slog.String("headers", rec.HeaderDump()),
		slog.String("ja4h", rec.JA4H),
	}

	if rec.Method != http.MethodPost {
		return result
	}

	result = append(result, slog.String("body", rec.BodyText()))

	switch {
	case rec.Form != nil:
		result = append(result,
			slog.Any("form", *rec.Form),
			slog.Bool("active", rec.Active),
		)
	case rec.FormError != nil:
		result = append(result, slog.String("form_error", rec.FormError.Error()))
	}

	return result
}
