package sqlite

import (
	"strings"
	"testing"
)

func TestDialect(t *testing.T) {
	d := NewDialect()
	if d.GetPlaceholder() != "?" || d.GetDriverName() != "sqlite" {
		t.Fatalf("unexpected dialect basics")
	}
	if d.ConvertBoolToStorage(true) != 1 || d.ConvertBoolToStorage(false) != 0 {
		t.Fatalf("bools are stored as integers")
	}
	stmts := d.GetEnsureStatements("a_runs", "a_ctx")
	if len(stmts) != 2 || !strings.Contains(stmts[0], "a_runs") || !strings.Contains(stmts[1], "PRIMARY KEY(run_id, name)") {
		t.Fatalf("unexpected ensure statements %v", stmts)
	}
}
