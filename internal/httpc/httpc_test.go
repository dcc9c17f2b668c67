package httpc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func doGet(t *testing.T, opts Options, url string) (int, error) {
	t.Helper()
	resp, err := New(opts).R().SetContext(context.Background()).Get(url)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}

func transportOf(t *testing.T, opts Options) *http.Transport {
	t.Helper()
	tr, ok := New(opts).GetClient().Transport.(*http.Transport)
	if !ok || tr == nil {
		t.Fatalf("expected *http.Transport")
	}
	return tr
}

func TestHTTPClient_Insecure_AllowsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := doGet(t, Options{}, srv.URL); err == nil {
		t.Fatalf("expected error without insecure TLS, got nil")
	}
	if code, err := doGet(t, Options{InsecureSkipVerify: true}, srv.URL); err != nil || code != 200 {
		t.Fatalf("expected 200 with insecure, got code=%d err=%v", code, err)
	}
	// the insecure client above must not leak into a fresh strict client
	if _, err := doGet(t, Options{}, srv.URL); err == nil {
		t.Fatalf("strict client accepted a self-signed certificate after an insecure one ran")
	}
}

func TestHTTPClient_TLSConfig(t *testing.T) {
	tr := transportOf(t, Options{InsecureSkipVerify: true})
	if !tr.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify=true")
	}
	if tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected TLS1.2 floor, got %v", tr.TLSClientConfig.MinVersion)
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("connections are per request; keep-alives should be off")
	}

	tr = transportOf(t, Options{MinTLSVersion: "1.0"})
	if tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version below 1.2 must be ignored, got %v", tr.TLSClientConfig.MinVersion)
	}

	tr = transportOf(t, Options{MinTLSVersion: "tls1.3", MaxTLSVersion: "1.3"})
	if tr.TLSClientConfig.MinVersion != tls.VersionTLS13 || tr.TLSClientConfig.MaxVersion != tls.VersionTLS13 {
		t.Fatalf("expected TLS1.3 only, got Min=%v Max=%v", tr.TLSClientConfig.MinVersion, tr.TLSClientConfig.MaxVersion)
	}
}

func TestHTTPClient_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if code, err := doGet(t, Options{FollowRedirects: true}, srv.URL+"/old"); err != nil || code != 200 {
		t.Fatalf("following: code=%d err=%v", code, err)
	}
	if code, err := doGet(t, Options{FollowRedirects: false}, srv.URL+"/old"); err != nil || code != http.StatusFound {
		t.Fatalf("not following: code=%d err=%v", code, err)
	}
}

func TestHTTPClient_ReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	_, err := doGet(t, Options{ReadTimeout: 50 * time.Millisecond}, srv.URL)
	if err == nil {
		t.Fatalf("expected a timeout")
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected a net timeout error, got %v", err)
	}

	if code, err := doGet(t, Options{ReadTimeout: 2 * time.Second}, srv.URL); err != nil || code != 200 {
		t.Fatalf("generous read timeout: code=%d err=%v", code, err)
	}
}

func TestHTTPClient_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer srv.Close()
	if code, err := doGet(t, Options{}, srv.URL); err != nil || code != 204 {
		t.Fatalf("expected 204, got code=%d err=%v", code, err)
	}
}
