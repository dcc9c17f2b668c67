// Package sink opens destination paths for writing. The scheme of a destination
// picks the implementation: plain paths and file:// go to the local filesystem,
// s3:// to S3, and webhdfs://, swebhdfs:// and hdfs:// to WebHDFS.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/apifetch/internal/sink/local"
	"github.com/loykin/apifetch/internal/sink/s3"
	"github.com/loykin/apifetch/internal/sink/webhdfs"
)

// ErrUnsupported is returned for destinations whose scheme has no registered sink.
var ErrUnsupported = errors.New("sink: unsupported destination scheme")

// Writer receives the body. Commit makes it visible at the destination;
// Close releases resources and must be called on every path.
type Writer interface {
	io.Writer
	Commit() error
	Close() error
}

// Sink creates or overwrites one destination per Create call.
type Sink interface {
	Create(ctx context.Context, dest string) (Writer, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, dest string) (Writer, error)

func (f SinkFunc) Create(ctx context.Context, dest string) (Writer, error) { return f(ctx, dest) }

// Factory builds a Sink from its loosely-typed config section.
type Factory func(ctx context.Context, settings map[string]interface{}) (Sink, error)

type registration struct {
	section string
	factory Factory
}

var (
	mu       sync.RWMutex
	registry = map[string]registration{}
)

func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register binds a scheme to a factory reading config section section.
func Register(scheme, section string, f Factory) {
	key := normalizeKey(scheme)
	if key == "" || f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[key] = registration{section: section, factory: f}
}

// Scheme returns the normalized scheme of dest; local paths report "file".
func Scheme(dest string) string {
	u, err := url.Parse(dest)
	// single letters are Windows drive names
	if err != nil || len(u.Scheme) <= 1 {
		return "file"
	}
	return normalizeKey(u.Scheme)
}

// Supported reports whether dest has a registered sink.
func Supported(dest string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[Scheme(dest)]
	return ok
}

// Resolver opens destinations using per-section settings (keys "local", "s3", "webhdfs").
type Resolver struct {
	settings map[string]map[string]interface{}
}

func NewResolver(settings map[string]map[string]interface{}) *Resolver {
	return &Resolver{settings: settings}
}

// Open creates or overwrites dest.
func (r *Resolver) Open(ctx context.Context, dest string) (Writer, error) {
	scheme := Scheme(dest)
	mu.RLock()
	reg, ok := registry[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, scheme)
	}
	var settings map[string]interface{}
	if r != nil {
		settings = r.settings[reg.section]
	}
	s, err := reg.factory(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", scheme, err)
	}
	return s.Create(ctx, dest)
}

func decode(settings map[string]interface{}, out interface{}) error {
	if settings == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}

// Built-in sink registrations
func init() {
	localFactory := func(_ context.Context, settings map[string]interface{}) (Sink, error) {
		var c local.Config
		if err := decode(settings, &c); err != nil {
			return nil, err
		}
		l := local.New(c)
		return SinkFunc(func(ctx context.Context, dest string) (Writer, error) {
			w, err := l.Create(ctx, dest)
			if err != nil {
				return nil, err
			}
			return w, nil
		}), nil
	}
	Register("file", "local", localFactory)

	Register("s3", "s3", func(ctx context.Context, settings map[string]interface{}) (Sink, error) {
		var c s3.Config
		if err := decode(settings, &c); err != nil {
			return nil, err
		}
		s, err := s3.New(ctx, c)
		if err != nil {
			return nil, err
		}
		return SinkFunc(func(ctx context.Context, dest string) (Writer, error) {
			w, err := s.Create(ctx, dest)
			if err != nil {
				return nil, err
			}
			return w, nil
		}), nil
	})

	hdfsFactory := func(_ context.Context, settings map[string]interface{}) (Sink, error) {
		var c webhdfs.Config
		if err := decode(settings, &c); err != nil {
			return nil, err
		}
		s := webhdfs.New(c)
		return SinkFunc(func(ctx context.Context, dest string) (Writer, error) {
			w, err := s.Create(ctx, dest)
			if err != nil {
				return nil, err
			}
			return w, nil
		}), nil
	}
	for _, scheme := range []string{"webhdfs", "swebhdfs", "hdfs"} {
		Register(scheme, "webhdfs", hdfsFactory)
	}
}
