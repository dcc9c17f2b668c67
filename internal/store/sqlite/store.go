package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/apifetch/internal/common"
	"github.com/loykin/apifetch/internal/store/connector"
)

type Store struct {
	db      *sql.DB
	dialect *Dialect
	DSN     string
}

var _ connector.Connector = (*Store)(nil)

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{dialect: NewDialect()}
}

// Load loads configuration into the SQLite store
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = fmt.Sprintf("file:%s?_busy_timeout=%d&%s", path, busyTimeoutMS, foreignKeysParam)
	}
	return nil
}

// Connect opens the database; an empty DSN means an in-memory database.
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}
	db, err := s.dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db
	common.GetLogger().WithStore("sqlite").Debug("SQLite database connection established")
	return db, nil
}

func (s *Store) Validate() error { return nil }

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure creates the tables.
func (s *Store) Ensure(ctx context.Context, th connector.TableNames) error {
	logger := common.GetLogger().WithStore("sqlite")
	for i, q := range s.dialect.GetEnsureStatements(th.FetchRuns, th.RunContext) {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	logger.Debug("SQLite database schema ensured")
	return nil
}

// RecordRun inserts one run row.
func (s *Store) RecordRun(ctx context.Context, th connector.TableNames, run connector.Run) error {
	logger := common.GetLogger().WithStore("sqlite").WithRun(run.ID)
	ph := s.dialect.GetPlaceholder()
	q := fmt.Sprintf("INSERT INTO %s(run_id, url, method, destination, attempts, status_code, bytes, failed, error, ran_at) VALUES(%s)",
		th.FetchRuns, strings.TrimSuffix(strings.Repeat(ph+",", 10), ","))
	ranAt := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, q, run.ID, run.URL, run.Method, run.Destination, run.Attempts,
		run.StatusCode, run.Bytes, s.dialect.ConvertBoolToStorage(run.Failed), run.Error, ranAt)
	if err != nil {
		logger.Error("failed to record fetch run", "error", err)
		return fmt.Errorf("failed to record fetch run %s: %w", run.ID, err)
	}
	logger.Debug("fetch run recorded", "failed", run.Failed, "attempts", run.Attempts)
	return nil
}

// SaveContext stores the values a run published, replacing existing names.
func (s *Store) SaveContext(ctx context.Context, th connector.TableNames, runID string, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	valuesClauses := make([]string, 0, len(kv))
	args := make([]interface{}, 0, len(kv)*3)
	for name, value := range kv {
		valuesClauses = append(valuesClauses, "(?,?,?)")
		args = append(args, runID, name, value)
	}
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s(run_id, name, value) VALUES %s",
		th.RunContext, strings.Join(valuesClauses, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to save run context for %s: %w", runID, err)
	}
	return nil
}

// LoadContext reads the values stored for runID.
func (s *Store) LoadContext(ctx context.Context, th connector.TableNames, runID string) (map[string]string, error) {
	q := fmt.Sprintf("SELECT name, value FROM %s WHERE run_id = ?", th.RunContext)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run context for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()
	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (s *Store) LatestSuccessfulRun(ctx context.Context, th connector.TableNames) (string, error) {
	q := fmt.Sprintf("SELECT run_id FROM %s WHERE failed = 0 ORDER BY seq DESC LIMIT 1", th.FetchRuns)
	var id string
	err := s.db.QueryRowContext(ctx, q).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return id, nil
}

// ListRuns returns run history with SQLite-specific type handling
func (s *Store) ListRuns(ctx context.Context, th connector.TableNames) ([]connector.Run, error) {
	q := fmt.Sprintf("SELECT seq, run_id, url, method, destination, attempts, status_code, bytes, failed, error, ran_at FROM %s ORDER BY seq ASC", th.FetchRuns)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var run connector.Run
		var errText sql.NullString
		var failed int64
		if err := rows.Scan(&run.Seq, &run.ID, &run.URL, &run.Method, &run.Destination, &run.Attempts,
			&run.StatusCode, &run.Bytes, &failed, &errText, &run.RanAt); err != nil {
			return nil, fmt.Errorf("failed to scan fetch run: %w", err)
		}
		run.Failed = failed != 0
		if errText.Valid {
			run.Error = &errText.String
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetch runs: %w", err)
	}
	return runs, nil
}
