package connector

import (
	"context"
	"database/sql"
)

// Run is one recorded action execution from the fetch_runs table.
type Run struct {
	Seq         int64
	ID          string
	URL         string
	Method      string
	Destination string
	Attempts    int
	StatusCode  int
	Bytes       int64
	Failed      bool
	Error       *string
	RanAt       string // RFC3339Nano
}

// TableNames represents database table names
type TableNames struct {
	FetchRuns  string
	RunContext string
}

// Connector is implemented by each database backend.
type Connector interface {
	Connect() (*sql.DB, error)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(ctx context.Context, th TableNames) error
	RecordRun(ctx context.Context, th TableNames, run Run) error
	SaveContext(ctx context.Context, th TableNames, runID string, kv map[string]string) error
	LoadContext(ctx context.Context, th TableNames, runID string) (map[string]string, error)
	// LatestSuccessfulRun returns the id of the newest run that did not fail, or "" when none.
	LatestSuccessfulRun(ctx context.Context, th TableNames) (string, error)
	// ListRuns returns run history ordered oldest first
	ListRuns(ctx context.Context, th TableNames) ([]Run, error)
	Close() error
}
