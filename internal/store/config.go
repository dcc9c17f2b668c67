package store

import (
	"strings"

	"github.com/loykin/apifetch/internal/constants"
	"github.com/loykin/apifetch/internal/store/connector"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

type (
	Run        = connector.Run
	TableNames = connector.TableNames
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	TableNames   TableNames
	DriverConfig DriverConfig
}

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// DefaultTableNames returns fetch_runs and run_context.
func DefaultTableNames() TableNames {
	return TableNames{FetchRuns: constants.DefaultFetchRunsTable, RunContext: constants.DefaultRunContextTable}
}

// BuildTableNames applies explicit names first, then prefix-derived names, then defaults.
func BuildTableNames(prefix, fetchRuns, runContext string) TableNames {
	prefix = strings.TrimSpace(prefix)
	tn := TableNames{FetchRuns: strings.TrimSpace(fetchRuns), RunContext: strings.TrimSpace(runContext)}
	if prefix != "" {
		if tn.FetchRuns == "" {
			tn.FetchRuns = prefix + constants.FetchRunsSuffix
		}
		if tn.RunContext == "" {
			tn.RunContext = prefix + constants.RunContextSuffix
		}
	}
	def := DefaultTableNames()
	if tn.FetchRuns == "" {
		tn.FetchRuns = def.FetchRuns
	}
	if tn.RunContext == "" {
		tn.RunContext = def.RunContext
	}
	return tn
}

func normalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgresql
	default:
		return DriverSqlite
	}
}
