package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/apifetch/internal/config"
	"github.com/loykin/apifetch/internal/env"
	"github.com/loykin/apifetch/internal/feedmock"
	"github.com/loykin/apifetch/internal/metrics"
	"github.com/loykin/apifetch/internal/retry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func requestSpec(url string, retries int) config.RequestSpec {
	return config.RequestSpec{
		URL:             url,
		Method:          http.MethodGet,
		Charset:         "UTF-8",
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     5 * time.Second,
		FollowRedirects: true,
		Retries:         retries,
	}
}

func outputTarget(path, format string) config.OutputTarget {
	return config.OutputTarget{
		DestinationPath:    path,
		OutputFormat:       format,
		ResultPathVar:      "filePath",
		ResponseHeadersVar: "responseHeaders",
	}
}

func attemptsMetric(outcome string, n int) string {
	return fmt.Sprintf(`# HELP apifetch_attempts_total HTTP fetch attempts by outcome (success, retryable, fatal).
# TYPE apifetch_attempts_total counter
apifetch_attempts_total{outcome=%q} %d
`, outcome, n)
}

func feedServer(t *testing.T) (*feedmock.Server, *httptest.Server) {
	t.Helper()
	fm := feedmock.New()
	srv := httptest.NewServer(fm.Handler())
	t.Cleanup(srv.Close)
	return fm, srv
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

func TestRun_UsersFeed(t *testing.T) {
	fm, srv := feedServer(t)
	const users = "samuel jackson, dwayne johnson, christopher walken"
	fm.Put("users", []byte(users), "text/plain; charset=utf-8")

	dest := filepath.Join(t.TempDir(), "feeds", "users.txt")
	rc := env.New()
	var ex Executor
	res, err := ex.Run(context.Background(), requestSpec(srv.URL+"/feeds/users", 0), outputTarget(dest, "Text"), rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(readFile(t, dest)); got != users {
		t.Fatalf("file content %q", got)
	}
	if v, _ := rc.Get("filePath"); v != dest {
		t.Fatalf("filePath = %q, want %q", v, dest)
	}
	if res.Attempts != 1 || res.StatusCode != http.StatusOK || res.Bytes != int64(len(users)) {
		t.Fatalf("unexpected result %+v", res)
	}

	raw, ok := rc.Get("responseHeaders")
	if !ok {
		t.Fatalf("responseHeaders not published")
	}
	var hdrs map[string]string
	if err := json.Unmarshal([]byte(raw), &hdrs); err != nil {
		t.Fatalf("responseHeaders is not JSON: %v", err)
	}
	if hdrs["Content-Type"] != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected headers %v", hdrs)
	}
}

func TestRun_AlwaysFailingMakesRetriesPlusOneAttempts(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		fm, srv := feedServer(t)
		fm.Put("users", []byte("x"), "text/plain")
		fm.FailNext("users", 100)

		m := metrics.New()
		ex := Executor{Metrics: m}
		dest := filepath.Join(t.TempDir(), "out.txt")
		rc := env.New()
		_, err := ex.Run(context.Background(), requestSpec(srv.URL+"/feeds/users", retries), outputTarget(dest, "Text"), rc)
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("retries=%d: expected exhaustion, got %v", retries, err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected wrapped StatusError, got %v", err)
		}
		if got := fm.Hits("users"); got != retries+1 {
			t.Fatalf("retries=%d: %d attempts, want %d", retries, got, retries+1)
		}
		if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(attemptsMetric("retryable", retries+1)), "apifetch_attempts_total"); err != nil {
			t.Fatalf("metrics: %v", err)
		}
		if _, ok := rc.Get("filePath"); ok {
			t.Fatalf("nothing may be published on failure")
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Fatalf("destination must not be created on failure")
		}
	}
}

func TestRun_SucceedsOnAttemptK(t *testing.T) {
	fm, srv := feedServer(t)
	fm.Put("users", []byte("ok"), "text/plain")
	fm.FailNext("users", 2)

	dest := filepath.Join(t.TempDir(), "out.txt")
	var ex Executor
	res, err := ex.Run(context.Background(), requestSpec(srv.URL+"/feeds/users", 3), outputTarget(dest, "Text"), env.New())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Attempts != 3 || fm.Hits("users") != 3 {
		t.Fatalf("expected 3 attempts, result=%d hits=%d", res.Attempts, fm.Hits("users"))
	}
	if got := string(readFile(t, dest)); got != "ok" {
		t.Fatalf("content %q", got)
	}
}

func TestRun_BinaryWritesExactBytes(t *testing.T) {
	payload := make([]byte, 3*4096+17)
	rand.New(rand.NewSource(1)).Read(payload)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "blob.bin")
	var ex Executor
	res, err := ex.Run(context.Background(), requestSpec(srv.URL, 0), outputTarget(dest, "Binary"), env.New())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Fatalf("binary content differs")
	}
	if res.Bytes != int64(len(payload)) {
		t.Fatalf("bytes = %d", res.Bytes)
	}
}

func TestRun_TextKeepsMultibyteAcrossBufferBoundary(t *testing.T) {
	for _, offset := range []int{4094, 4095, 4096} {
		text := strings.Repeat("a", offset) + "é漢字😀" + strings.Repeat("b", 5000) + "끝"
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(text))
		}))
		dest := filepath.Join(t.TempDir(), "text.txt")
		var ex Executor
		_, err := ex.Run(context.Background(), requestSpec(srv.URL, 0), outputTarget(dest, "Text"), env.New())
		srv.Close()
		if err != nil {
			t.Fatalf("offset %d: %v", offset, err)
		}
		if got := string(readFile(t, dest)); got != text {
			t.Fatalf("offset %d: text corrupted", offset)
		}
	}
}

func TestRun_TextDecodesCharsetToUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xE9})
	}))
	defer srv.Close()

	req := requestSpec(srv.URL, 0)
	req.Charset = "ISO-8859-1"
	dest := filepath.Join(t.TempDir(), "latin1.txt")
	var ex Executor
	if _, err := ex.Run(context.Background(), req, outputTarget(dest, "Text"), env.New()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(readFile(t, dest)); got != "café" {
		t.Fatalf("got %q", got)
	}
}

func TestRun_HeadersAndBodyArePassedThrough(t *testing.T) {
	_, srv := feedServer(t)
	body := "name=é"
	req := requestSpec(srv.URL+"/echo", 0)
	req.Method = http.MethodPost
	req.Body = &body
	req.Headers = map[string]string{"X-Trace-Id": " abc123", "Authorization": "Bearer secret"}

	dest := filepath.Join(t.TempDir(), "echo.json")
	rc := env.New()
	var ex Executor
	if _, err := ex.Run(context.Background(), req, outputTarget(dest, "Binary"), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var echo struct {
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
	if err := json.Unmarshal(readFile(t, dest), &echo); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if echo.Method != http.MethodPost || echo.Body != body {
		t.Fatalf("unexpected echo %+v", echo)
	}
	if echo.Headers["X-Trace-Id"] != "abc123" || echo.Headers["Authorization"] != "Bearer secret" {
		t.Fatalf("headers not passed through: %v", echo.Headers)
	}

	raw, _ := rc.Get("responseHeaders")
	var hdrs map[string]string
	if err := json.Unmarshal([]byte(raw), &hdrs); err != nil {
		t.Fatal(err)
	}
	if hdrs["X-Echo"] != "one,two" {
		t.Fatalf("multi-valued header not flattened: %q", hdrs["X-Echo"])
	}
}

func TestRun_BodyIsEncodedWithCharset(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- b
	}))
	defer srv.Close()

	body := "café"
	req := requestSpec(srv.URL, 0)
	req.Method = http.MethodPost
	req.Body = &body
	req.Charset = "ISO-8859-1"
	var ex Executor
	if _, err := ex.Run(context.Background(), req, outputTarget(filepath.Join(t.TempDir(), "x"), "Binary"), env.New()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := <-received; !bytes.Equal(got, []byte{'c', 'a', 'f', 0xE9}) {
		t.Fatalf("body bytes %v", got)
	}
}

func TestRun_RedirectPolicy(t *testing.T) {
	fm, srv := feedServer(t)
	fm.Put("users", []byte("moved here"), "text/plain")

	dest := filepath.Join(t.TempDir(), "r.txt")
	var ex Executor
	res, err := ex.Run(context.Background(), requestSpec(srv.URL+"/redirect/users", 0), outputTarget(dest, "Text"), env.New())
	if err != nil || res.StatusCode != http.StatusOK || string(readFile(t, dest)) != "moved here" {
		t.Fatalf("follow: res=%+v err=%v", res, err)
	}

	req := requestSpec(srv.URL+"/redirect/users", 0)
	req.FollowRedirects = false
	res, err = ex.Run(context.Background(), req, outputTarget(dest, "Text"), env.New())
	if err != nil {
		t.Fatalf("no-follow: %v", err)
	}
	if res.StatusCode != http.StatusFound || res.Headers["Location"] != "/feeds/users" {
		t.Fatalf("expected the 302 itself, got %+v", res)
	}
}

func TestRun_TLSValidationIsPerRequest(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "tls.txt")
	var ex Executor

	insecure := requestSpec(srv.URL, 0)
	insecure.InsecureSkipVerify = true
	if _, err := ex.Run(context.Background(), insecure, outputTarget(dest, "Text"), env.New()); err != nil {
		t.Fatalf("insecure run: %v", err)
	}

	strict := requestSpec(srv.URL, 1)
	_, err := ex.Run(context.Background(), strict, outputTarget(dest, "Text"), env.New())
	if !errors.Is(err, ErrAttemptsExhausted) || !strings.Contains(err.Error(), "certificate") {
		t.Fatalf("expected certificate failure after retries, got %v", err)
	}
}

func TestRun_ProtocolErrorsAreNotRetried(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*config.RequestSpec)
	}{
		{"unsupported scheme", func(s *config.RequestSpec) { s.URL = "ftp://localhost/feeds/users" }},
		{"unparseable url", func(s *config.RequestSpec) { s.URL = "http://[::1" }},
		{"bad header name", func(s *config.RequestSpec) { s.Headers = map[string]string{"Bad Header": "x"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
			}))
			defer srv.Close()

			req := requestSpec(srv.URL, 3)
			tc.mut(&req)
			m := metrics.New()
			ex := Executor{Metrics: m}
			_, err := ex.Run(context.Background(), req, outputTarget(filepath.Join(t.TempDir(), "x"), "Text"), env.New())
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if errors.Is(err, ErrAttemptsExhausted) {
				t.Fatalf("protocol errors must not be reported as exhaustion")
			}
			if atomic.LoadInt32(&hits) != 0 {
				t.Fatalf("no request may reach the server")
			}
			if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(attemptsMetric("fatal", 1)), "apifetch_attempts_total"); err != nil {
				t.Fatalf("metrics: %v", err)
			}
		})
	}
}

func TestRun_SinkFailureIsRetried(t *testing.T) {
	fm, srv := feedServer(t)
	fm.Put("users", []byte("x"), "text/plain")

	dir := t.TempDir()
	var ex Executor
	_, err := ex.Run(context.Background(), requestSpec(srv.URL+"/feeds/users", 1), outputTarget(dir, "Text"), env.New())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected exhaustion writing to a directory, got %v", err)
	}
	if got := fm.Hits("users"); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestRun_UnsupportedSinkIsFatal(t *testing.T) {
	fm, srv := feedServer(t)
	fm.Put("users", []byte("x"), "text/plain")

	var ex Executor
	_, err := ex.Run(context.Background(), requestSpec(srv.URL+"/feeds/users", 3), outputTarget("gopher://host/x", "Text"), env.New())
	if err == nil || errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected a fatal sink error, got %v", err)
	}
	if got := fm.Hits("users"); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestRun_ReadTimeoutIsRetryable(t *testing.T) {
	fm, srv := feedServer(t)
	fm.Put("users", []byte("late"), "text/plain")

	req := requestSpec(srv.URL+"/slow/users?delay=2s", 1)
	req.ReadTimeout = 100 * time.Millisecond
	var ex Executor
	_, err := ex.Run(context.Background(), req, outputTarget(filepath.Join(t.TempDir(), "x"), "Text"), env.New())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected exhaustion after timeouts, got %v", err)
	}
	if got := fm.Hits("users"); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestRun_ContextCancelStopsRetries(t *testing.T) {
	fm, srv := feedServer(t)
	fm.FailNext("users", 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := Executor{Retry: &retry.Config{InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 1}}
	go func() {
		for fm.Hits("users") < 1 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()
	_, err := ex.Run(ctx, requestSpec(srv.URL+"/feeds/users", 50), outputTarget(filepath.Join(t.TempDir(), "x"), "Text"), env.New())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got := fm.Hits("users"); got > 2 {
		t.Fatalf("cancellation did not stop retries: %d attempts", got)
	}
}

func TestFlattenHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("Content-Length", "10")
	h[""] = []string{"HTTP/1.1 200 OK"}
	got := FlattenHeaders(h)
	if len(got) != 2 || got["Set-Cookie"] != "a=1,b=2" || got["Content-Length"] != "10" {
		t.Fatalf("unexpected %v", got)
	}
}
