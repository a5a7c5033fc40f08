package reqlog

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TecharoHQ/poolhttpd/web"
)

func newTestServer(t *testing.T, opts Options) (*Server, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}

	return s, &buf
}

// lockedBuffer is a bytes.Buffer safe to share with server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func logLines(t *testing.T, out string) []map[string]any {
	t.Helper()

	var result []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}

		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q is not JSON: %v", line, err)
		}
		result = append(result, rec)
	}

	return result
}

func postRequest(target, body string, contentLength int) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.ContentLength = int64(contentLength)
	if contentLength >= 0 {
		req.Header.Set("Content-Length", strconv.Itoa(contentLength))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New without a logger should fail")
	}
}

func TestGetServesStaticForm(t *testing.T) {
	for _, path := range []string{"/", "/status", "/status?x=1", "/%7B%7D", "/a/b/c"} {
		t.Run(path, func(t *testing.T) {
			s, buf := newTestServer(t, Options{})

			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}

			if ct := rr.Header().Get("Content-Type"); ct != "text/html" {
				t.Errorf("Content-Type = %q, want text/html", ct)
			}

			if rr.Body.String() != web.Form {
				t.Errorf("body is not the static form:\n%s", rr.Body.String())
			}

			lines := logLines(t, buf.String())
			if len(lines) != 1 {
				t.Fatalf("got %d log lines, want 1", len(lines))
			}

			if lines[0]["msg"] != "GET request" || lines[0]["path"] != path || lines[0]["level"] != "INFO" {
				t.Errorf("unexpected log line: %v", lines[0])
			}
		})
	}
}

func TestGetStatusLogsHeaders(t *testing.T) {
	s, buf := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "http://pool.local/status", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "pool-test")

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	lines := logLines(t, buf.String())
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}

	line := buf.String()
	for _, want := range []string{"GET", "/status"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line is missing %q: %s", want, line)
		}
	}

	headers, _ := lines[0]["headers"].(string)
	for _, want := range []string{"Host: pool.local\n", "Accept: text/html\n", "User-Agent: pool-test\n"} {
		if !strings.Contains(headers, want) {
			t.Errorf("header dump is missing %q:\n%s", want, headers)
		}
	}

	if id := rr.Header().Get("X-Request-Id"); id == "" || lines[0]["request_id"] != id {
		t.Errorf("X-Request-Id %q does not match logged request_id %v", id, lines[0]["request_id"])
	}
}

func TestPost(t *testing.T) {
	s, buf := newTestServer(t, Options{})

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, postRequest("/submit", "duration=5", 10))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	if got := rr.Body.String(); got != "POST request for /submit" {
		t.Errorf("body = %q, want %q", got, "POST request for /submit")
	}

	lines := logLines(t, buf.String())
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}

	if lines[0]["msg"] != "POST request" || lines[0]["body"] != "duration=5" {
		t.Errorf("unexpected log line: %v", lines[0])
	}

	if _, ok := lines[0]["form_error"]; !ok {
		t.Error("a body without stime should log form_error")
	}
}

func TestPostEchoesRawTarget(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, postRequest("/set?x=1", "", 0))

	if got := rr.Body.String(); got != "POST request for /set?x=1" {
		t.Errorf("body = %q", got)
	}
}

func TestPostReadsExactlyContentLength(t *testing.T) {
	s, buf := newTestServer(t, Options{})

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, postRequest("/submit", "duration=5&command=reboot", 10))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	lines := logLines(t, buf.String())
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}

	if lines[0]["body"] != "duration=5" {
		t.Errorf("logged body = %q, want %q", lines[0]["body"], "duration=5")
	}
}

func TestPostMalformed(t *testing.T) {
	for _, tt := range []struct {
		name     string
		req      func() *http.Request
		maxBody  int64
		wantCode int
		wantBody string
	}{
		{
			name:     "missing Content-Length",
			req:      func() *http.Request { return postRequest("/submit", "duration=5", -1) },
			wantCode: http.StatusBadRequest,
			wantBody: "missing Content-Length",
		},
		{
			name: "non-numeric Content-Length",
			req: func() *http.Request {
				req := postRequest("/submit", "duration=5", -1)
				req.Header.Set("Content-Length", "ten")
				return req
			},
			wantCode: http.StatusBadRequest,
			wantBody: "bad Content-Length",
		},
		{
			name:     "body shorter than declared",
			req:      func() *http.Request { return postRequest("/submit", "duration=5", 20) },
			wantCode: http.StatusBadRequest,
			wantBody: "short body",
		},
		{
			name:     "declared length over the limit",
			req:      func() *http.Request { return postRequest("/submit", "duration=5", 10) },
			maxBody:  8,
			wantCode: http.StatusRequestEntityTooLarge,
			wantBody: "limit is 8",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, buf := newTestServer(t, Options{MaxBodyBytes: tt.maxBody})

			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, tt.req())

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}

			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not mention %q", rr.Body.String(), tt.wantBody)
			}

			lines := logLines(t, buf.String())
			if len(lines) != 1 {
				t.Fatalf("got %d log lines, want 1", len(lines))
			}

			if lines[0]["level"] != "WARN" || lines[0]["msg"] != "malformed request" {
				t.Errorf("unexpected log line: %v", lines[0])
			}
		})
	}
}

func TestPostDecodesForm(t *testing.T) {
	now := time.Date(2026, time.June, 1, 11, 30, 0, 0, time.UTC)
	s, buf := newTestServer(t, Options{Now: func() time.Time { return now }})

	body := "stime=10%3A00&duration=2&command=reboot"
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, postRequest("/", body, len(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	lines := logLines(t, buf.String())
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}

	form, ok := lines[0]["form"].(map[string]any)
	if !ok {
		t.Fatalf("no form group in %v", lines[0])
	}

	if form["stime"] != "10:00" || form["command"] != "reboot" || form["duration_hours"] != float64(2) {
		t.Errorf("unexpected form group: %v", form)
	}

	if lines[0]["active"] != true {
		t.Errorf("active = %v, want true", lines[0]["active"])
	}
}

func TestPostInvalidUTF8(t *testing.T) {
	s, buf := newTestServer(t, Options{})

	body := "a\xffb"
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, postRequest("/", body, len(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	lines := logLines(t, buf.String())
	if lines[0]["body"] != "a\uFFFDb" {
		t.Errorf("logged body = %q", lines[0]["body"])
	}
}

func TestUnsupportedMethod(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodHead, "BREW"} {
		t.Run(method, func(t *testing.T) {
			s, buf := newTestServer(t, Options{})

			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))

			if rr.Code != http.StatusNotImplemented {
				t.Fatalf("status = %d, want 501", rr.Code)
			}

			if allow := rr.Header().Get("Allow"); allow != "GET, POST" {
				t.Errorf("Allow = %q", allow)
			}

			lines := logLines(t, buf.String())
			if len(lines) != 1 || lines[0]["level"] != "WARN" {
				t.Errorf("unexpected log lines: %v", lines)
			}
		})
	}
}

func TestHandlerOverNetwork(t *testing.T) {
	var buf lockedBuffer
	lg := slog.New(slog.NewJSONHandler(&buf, nil))

	h, err := Handler(t.Context(), Options{Logger: lg, Serial: true})
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(data) != web.Form {
		t.Fatalf("GET /status: %d %q", resp.StatusCode, data)
	}

	resp, err = http.Post(ts.URL+"/submit", "application/x-www-form-urlencoded", strings.NewReader("duration=5"))
	if err != nil {
		t.Fatal(err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(data) != "POST request for /submit" {
		t.Fatalf("POST /submit: %d %q", resp.StatusCode, data)
	}

	if n := len(logLines(t, buf.String())); n != 2 {
		t.Errorf("got %d log lines for 2 requests", n)
	}
}
