package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config controls the local filesystem sink.
type Config struct {
	// NoMkdir disables creating missing parent directories.
	NoMkdir bool        `mapstructure:"no_mkdir"`
	Perm    os.FileMode `mapstructure:"perm"`
}

// Sink writes to the local filesystem with create-or-overwrite semantics.
type Sink struct {
	cfg Config
}

func New(cfg Config) *Sink {
	if cfg.Perm == 0 {
		cfg.Perm = 0o644
	}
	return &Sink{cfg: cfg}
}

// Path turns a plain path or a file:// URL into a filesystem path.
func Path(dest string) (string, error) {
	if !strings.HasPrefix(dest, "file:") {
		return filepath.Clean(dest), nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file url with remote host %q", u.Host)
	}
	if u.Path == "" {
		return "", fmt.Errorf("file url %q has no path", dest)
	}
	return filepath.FromSlash(u.Path), nil
}

// Create opens dest for writing, truncating any existing file.
func (s *Sink) Create(_ context.Context, dest string) (*Writer, error) {
	p, err := Path(dest)
	if err != nil {
		return nil, err
	}
	if !s.cfg.NoMkdir {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create parent directory: %w", err)
		}
	}
	// #nosec G304 -- destination is the configured output path
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.cfg.Perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return &Writer{f: f}, nil
}

// Writer is an open destination file.
type Writer struct {
	f      *os.File
	closed bool
}

func (w *Writer) Write(p []byte) (int, error) { return w.f.Write(p) }

// Commit flushes the file to stable storage.
func (w *Writer) Commit() error { return w.f.Sync() }

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
