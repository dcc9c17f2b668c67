package apifetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_CollectsDecodeAndRuleFailures(t *testing.T) {
	fs := Validate(map[string]string{
		"url":            "test_url",
		"method":         "PUT",
		"connectTimeout": "-1",
		"numRetries":     "lots",
		"hdfsFilePath":   "/tmp/out.txt",
	})
	want := map[string]bool{"url": true, "method": true, "connectTimeout": true, "numRetries": true}
	if len(fs) != len(want) {
		t.Fatalf("expected %d failures, got %v", len(want), fs)
	}
	for _, f := range fs {
		if !want[f.Field] {
			t.Fatalf("unexpected failure %v", f)
		}
	}
}

func TestFetch_WritesFileAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("samuel jackson, dwayne johnson, christopher walken"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL + "/feeds/users"
	cfg.Path = filepath.Join(t.TempDir(), "users.txt")
	cfg.NumRetries = 0

	rc := NewEnv()
	res, err := Fetch(context.Background(), cfg, rc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	b, err := os.ReadFile(cfg.Path)
	if err != nil || string(b) != "samuel jackson, dwayne johnson, christopher walken" {
		t.Fatalf("file: %q %v", b, err)
	}
	if v, _ := rc.Get("filePath"); v != cfg.Path || res.Path != cfg.Path {
		t.Fatalf("filePath = %q", v)
	}
}

func TestFetch_StatusErrorExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.Path = filepath.Join(t.TempDir(), "x.txt")
	cfg.NumRetries = 1
	_, err := Fetch(context.Background(), cfg, NewEnv())
	var se *StatusError
	if !errors.Is(err, ErrAttemptsExhausted) || !errors.As(err, &se) {
		t.Fatalf("expected exhausted StatusError, got %v", err)
	}
}

func TestOpenStoreFromOptions_DefaultSqlite(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStoreFromOptions(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("OpenStoreFromOptions: %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, err := os.Stat(filepath.Join(dir, StoreDBFileName)); err != nil {
		t.Fatalf("expected default sqlite file: %v", err)
	}

	custom := &StoreConfig{Driver: DriverSqlite, DriverConfig: &SqliteConfig{Path: filepath.Join(dir, "custom.db")}}
	custom.TableNames.FetchRuns = "app_runs"
	st2, err := OpenStoreFromOptions(context.Background(), dir, custom)
	if err != nil {
		t.Fatalf("custom store: %v", err)
	}
	defer func() { _ = st2.Close() }()
	if tn := st2.TableNames(); tn.FetchRuns != "app_runs" || tn.RunContext != "run_context" {
		t.Fatalf("unexpected table names %+v", tn)
	}
}
