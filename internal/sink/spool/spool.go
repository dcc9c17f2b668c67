// Package spool buffers a body in a temporary file so remote sinks can upload it
// with a known length once the whole body has arrived.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// UploadFunc sends the spooled body. body is positioned at offset 0.
type UploadFunc func(ctx context.Context, body io.ReadSeeker, size int64) error

// Writer writes to a temporary file and uploads it on Commit.
type Writer struct {
	ctx       context.Context
	f         *os.File
	size      int64
	upload    UploadFunc
	committed bool
	closed    bool
}

// New creates the temporary file backing a Writer.
func New(ctx context.Context, upload UploadFunc) (*Writer, error) {
	f, err := os.CreateTemp("", "apifetch-spool-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &Writer{ctx: ctx, f: f, upload: upload}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Size reports the number of bytes spooled so far.
func (w *Writer) Size() int64 { return w.size }

// Commit uploads the spooled bytes. It may be called once.
func (w *Writer) Commit() error {
	if w.closed {
		return os.ErrClosed
	}
	if w.committed {
		return errors.New("spool: already committed")
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}
	if err := w.upload(w.ctx, w.f, w.size); err != nil {
		return err
	}
	w.committed = true
	return nil
}

// Close removes the temporary file. Uncommitted bytes are discarded.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	name := w.f.Name()
	cerr := w.f.Close()
	rerr := os.Remove(name)
	if cerr != nil {
		return cerr
	}
	if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return rerr
	}
	return nil
}
