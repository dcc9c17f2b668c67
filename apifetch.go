// Package apifetch fetches a resource over HTTP(S) and writes the response body to
// a local, S3 or WebHDFS path, publishing the written path and the response headers
// to the run context.
package apifetch

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/loykin/apifetch/internal/config"
	"github.com/loykin/apifetch/internal/constants"
	"github.com/loykin/apifetch/internal/env"
	"github.com/loykin/apifetch/internal/fetch"
	"github.com/loykin/apifetch/internal/sink"
	"github.com/loykin/apifetch/internal/store"
	"github.com/loykin/apifetch/internal/store/postgresql"
	"github.com/loykin/apifetch/internal/store/sqlite"
)

// Re-export commonly used types for public API

type (
	Config          = config.Config
	Failure         = config.Failure
	Failures        = config.Failures
	ValidationError = config.ValidationError
	RequestSpec     = config.RequestSpec
	OutputTarget    = config.OutputTarget

	Executor      = fetch.Executor
	Result        = fetch.Result
	RunContext    = fetch.RunContext
	ProtocolError = fetch.ProtocolError
	StatusError   = fetch.StatusError

	// Env is the run context implementation with placeholder rendering.
	Env = env.Env
)

// ErrAttemptsExhausted wraps the last error once every attempt failed.
var ErrAttemptsExhausted = fetch.ErrAttemptsExhausted

// DefaultConfig returns a Config carrying every default.
func DefaultConfig() Config { return config.Default() }

// ConfigFromProperties decodes a host property map of strings.
func ConfigFromProperties(props map[string]string) (Config, error) {
	return config.FromProperties(props)
}

// Validate decodes props and runs every rule, returning all failures.
func Validate(props map[string]string) Failures {
	cfg, err := config.FromProperties(props)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return append(ve.Failures, cfg.Validate()...)
	}
	return cfg.Validate()
}

// ParseHeaders parses newline-separated key:value pairs.
func ParseHeaders(s string) map[string]string { return config.ParseHeaders(s) }

// NewEnv returns an empty run context.
func NewEnv() *Env { return env.New() }

// Fetch runs the action once with a default executor writing to local paths.
func Fetch(ctx context.Context, cfg Config, rc RunContext) (*Result, error) {
	var ex Executor
	return ex.Execute(ctx, cfg, rc)
}

// Sink extension points

type (
	SinkWriter  = sink.Writer
	Sink        = sink.Sink
	SinkFactory = sink.Factory
	SinkFunc    = sink.SinkFunc
)

// RegisterSink binds a destination scheme to a factory reading config section section.
func RegisterSink(scheme, section string, f SinkFactory) { sink.Register(scheme, section, f) }

// NewSinkResolver returns a resolver using per-section settings ("local", "s3", "webhdfs").
func NewSinkResolver(settings map[string]map[string]interface{}) *sink.Resolver {
	return sink.NewResolver(settings)
}

// Store is the run history store.
type Store = store.Store

type (
	StoreConfig    = store.Config
	TableNames     = store.TableNames
	Run            = store.Run
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
)

const (
	DriverSqlite     = store.DriverSqlite
	DriverPostgresql = store.DriverPostgresql
	// StoreDBFileName is the sqlite file used when no path is configured.
	StoreDBFileName = constants.DefaultDBFileName
)

// BuildTableNames applies explicit names first, then prefix-derived names, then defaults.
func BuildTableNames(prefix, fetchRuns, runContext string) TableNames {
	return store.BuildTableNames(prefix, fetchRuns, runContext)
}

// OpenStore opens the store described by cfg and creates its tables.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) { return store.Open(ctx, cfg) }

// OpenStoreFromOptions opens cfg, or a sqlite store at dir/apifetch.db when cfg is nil.
func OpenStoreFromOptions(ctx context.Context, dir string, cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		return store.Open(ctx, store.Config{
			Driver:       store.DriverSqlite,
			TableNames:   store.DefaultTableNames(),
			DriverConfig: &sqlite.Config{Path: filepath.Join(dir, constants.DefaultDBFileName)},
		})
	}
	c := *cfg
	if c.DriverConfig == nil {
		c.DriverConfig = &sqlite.Config{Path: filepath.Join(dir, constants.DefaultDBFileName)}
	}
	c.TableNames = store.BuildTableNames("", c.TableNames.FetchRuns, c.TableNames.RunContext)
	return store.Open(ctx, c)
}
