package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/loykin/apifetch/internal/common"
	"github.com/loykin/apifetch/internal/retry"
	"github.com/loykin/apifetch/internal/store/connector"
	"github.com/loykin/apifetch/internal/store/postgresql"
	"github.com/loykin/apifetch/internal/store/sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store records run history and the values each run published.
type Store struct {
	DB     *sql.DB
	conn   connector.Connector
	tn     TableNames
	driver string
	retry  *retry.Config
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open connects to the configured backend and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	tn := cfg.TableNames
	if tn.FetchRuns == "" || tn.RunContext == "" {
		tn = BuildTableNames("", tn.FetchRuns, tn.RunContext)
	}
	for _, name := range []string{tn.FetchRuns, tn.RunContext} {
		if !tableNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}

	driver := normalizeDriver(cfg.Driver)
	var conn connector.Connector
	switch driver {
	case DriverPostgresql:
		conn = postgresql.NewStore()
	default:
		conn = sqlite.NewStore()
	}
	var opts map[string]interface{}
	if cfg.DriverConfig != nil {
		opts = cfg.DriverConfig.ToMap()
	}
	if err := conn.Load(opts); err != nil {
		return nil, err
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	db, err := conn.Connect()
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, conn: conn, tn: tn, driver: driver, retry: retry.DefaultRetryConfig()}
	s.retry.Logger = common.GetLogger().WithStore(driver)
	if err := retry.WithRetry(ctx, s.retry, func() error { return conn.Ensure(ctx, tn) }); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Driver reports the normalized backend name.
func (s *Store) Driver() string { return s.driver }

// TableNames reports the tables in use.
func (s *Store) TableNames() TableNames { return s.tn }

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// RecordRun stores one run. A missing ID is filled with a new uuid.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	err := retry.WithRetry(ctx, s.retry, func() error { return s.conn.RecordRun(ctx, s.tn, run) })
	return run.ID, err
}

// SaveContext stores the values published by runID.
func (s *Store) SaveContext(ctx context.Context, runID string, kv map[string]string) error {
	return retry.WithRetry(ctx, s.retry, func() error { return s.conn.SaveContext(ctx, s.tn, runID, kv) })
}

// LoadContext returns the values stored for runID.
func (s *Store) LoadContext(ctx context.Context, runID string) (map[string]string, error) {
	return retry.WithRetryExec(ctx, s.retry, func() (map[string]string, error) {
		return s.conn.LoadContext(ctx, s.tn, runID)
	})
}

// LatestContext returns the newest successful run id and its published values.
// runID is empty when no run succeeded yet.
func (s *Store) LatestContext(ctx context.Context) (string, map[string]string, error) {
	runID, err := s.conn.LatestSuccessfulRun(ctx, s.tn)
	if err != nil || runID == "" {
		return "", nil, err
	}
	kv, err := s.LoadContext(ctx, runID)
	return runID, kv, err
}

// ListRuns returns history oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return retry.WithRetryExec(ctx, s.retry, func() ([]Run, error) {
		return s.conn.ListRuns(ctx, s.tn)
	})
}
