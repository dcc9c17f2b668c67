package constants

import (
	"net/http"
	"time"
)

// Action defaults
const (
	DefaultMethod             = http.MethodGet
	DefaultConnectTimeoutMS   = 60 * 1000
	DefaultReadTimeoutMS      = 60 * 1000
	DefaultNumRetries         = 3
	DefaultFollowRedirects    = true
	DefaultDisableSSL         = true
	DefaultCharset            = "UTF-8"
	DefaultOutputFormat       = "Text"
	DefaultOutputPathVar      = "filePath"
	DefaultResponseHeadersVar = "responseHeaders"

	// BufferSize is the chunk size used when copying response bodies.
	BufferSize = 4096
)

// Output formats
const (
	OutputFormatText   = "Text"
	OutputFormatBinary = "Binary"
)

// Retry defaults. Attempts follow each other immediately unless a delay is configured.
const (
	DefaultRetryInitialDelay = 0
	DefaultRetryMaxDelay     = 5 * time.Second
	DefaultRetryMultiplier   = 2.0
)

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// Default table names
	DefaultFetchRunsTable  = "fetch_runs"
	DefaultRunContextTable = "run_context"

	// Table name suffixes when using prefixes
	FetchRunsSuffix  = "_fetch_runs"
	RunContextSuffix = "_run_context"

	// DefaultDBFileName is the sqlite file used when no path is configured.
	DefaultDBFileName = "apifetch.db"
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)
