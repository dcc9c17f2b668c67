package postgresql

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

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{dialect: NewDialect()}
}

// Load loads configuration into the PostgreSQL store
func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		p.DSN = dsn
	}
	return nil
}

// Validate requires a DSN.
func (p *Store) Validate() error {
	if strings.TrimSpace(p.DSN) == "" {
		return errors.New("postgresql store: dsn or host is required")
	}
	return nil
}

// Connect establishes a connection to PostgreSQL
func (p *Store) Connect() (*sql.DB, error) {
	db, err := p.dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.db = db
	common.GetLogger().WithStore("postgresql").Debug("PostgreSQL database connection established")
	return db, nil
}

func (p *Store) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ensure creates the tables.
func (p *Store) Ensure(ctx context.Context, th connector.TableNames) error {
	logger := common.GetLogger().WithStore("postgresql")
	for i, q := range p.dialect.GetEnsureStatements(th.FetchRuns, th.RunContext) {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1, "sql", q)
			return fmt.Errorf("failed to create table %d in PostgreSQL schema setup: %w", i+1, err)
		}
	}
	logger.Debug("PostgreSQL database schema ensured")
	return nil
}

// RecordRun inserts one run row using native bool and timestamptz columns.
func (p *Store) RecordRun(ctx context.Context, th connector.TableNames, run connector.Run) error {
	logger := common.GetLogger().WithStore("postgresql").WithRun(run.ID)
	q := fmt.Sprintf("INSERT INTO %s(run_id, url, method, destination, attempts, status_code, bytes, failed, error, ran_at) VALUES(%s)",
		th.FetchRuns, p.dialect.Placeholders(1, 10))
	_, err := p.db.ExecContext(ctx, q, run.ID, run.URL, run.Method, run.Destination, run.Attempts,
		run.StatusCode, run.Bytes, run.Failed, run.Error, time.Now().UTC())
	if err != nil {
		logger.Error("failed to record fetch run", "error", err)
		return fmt.Errorf("failed to record fetch run %s: %w", run.ID, err)
	}
	logger.Debug("fetch run recorded", "failed", run.Failed, "attempts", run.Attempts)
	return nil
}

// SaveContext upserts the values a run published.
func (p *Store) SaveContext(ctx context.Context, th connector.TableNames, runID string, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	valuesClauses := make([]string, 0, len(kv))
	args := make([]interface{}, 0, len(kv)*3)
	i := 1
	for name, value := range kv {
		valuesClauses = append(valuesClauses, "("+p.dialect.Placeholders(i, 3)+")")
		args = append(args, runID, name, value)
		i += 3
	}
	q := fmt.Sprintf("INSERT INTO %s(run_id, name, value) VALUES %s ON CONFLICT (run_id, name) DO UPDATE SET value = EXCLUDED.value",
		th.RunContext, strings.Join(valuesClauses, ","))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to save run context for %s: %w", runID, err)
	}
	return nil
}

func (p *Store) LoadContext(ctx context.Context, th connector.TableNames, runID string) (map[string]string, error) {
	q := fmt.Sprintf("SELECT name, value FROM %s WHERE run_id = $1", th.RunContext)
	rows, err := p.db.QueryContext(ctx, q, runID)
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

func (p *Store) LatestSuccessfulRun(ctx context.Context, th connector.TableNames) (string, error) {
	q := fmt.Sprintf("SELECT run_id FROM %s WHERE failed = FALSE ORDER BY seq DESC LIMIT 1", th.FetchRuns)
	var id string
	err := p.db.QueryRowContext(ctx, q).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return id, nil
}

func (p *Store) ListRuns(ctx context.Context, th connector.TableNames) ([]connector.Run, error) {
	q := fmt.Sprintf("SELECT seq, run_id, url, method, destination, attempts, status_code, bytes, failed, error, ran_at FROM %s ORDER BY seq ASC", th.FetchRuns)
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var run connector.Run
		var errText sql.NullString
		var ranAt time.Time
		if err := rows.Scan(&run.Seq, &run.ID, &run.URL, &run.Method, &run.Destination, &run.Attempts,
			&run.StatusCode, &run.Bytes, &run.Failed, &errText, &ranAt); err != nil {
			return nil, fmt.Errorf("failed to scan fetch run: %w", err)
		}
		if errText.Valid {
			run.Error = &errText.String
		}
		run.RanAt = p.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetch runs: %w", err)
	}
	return runs, nil
}
