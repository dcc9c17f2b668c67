package commands

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// execute runs cmd with args on fresh flag and viper state and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, settings map[string]any, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for k, v := range settings {
		viper.Set(k, v)
	}
	resetFlags := func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	resetFlags()
	t.Cleanup(resetFlags)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func usersServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Request-Auth", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("samuel jackson, dwayne johnson, christopher walken"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCmd_FlagsOnly(t *testing.T) {
	srv := usersServer(t)
	dest := filepath.Join(t.TempDir(), "users.txt")
	chdir(t, t.TempDir())

	out, err := execute(t, RunCmd, nil, "--url", srv.URL+"/feeds/users", "--path", dest, "--retries", "0", "--header", "Accept:text/plain")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "filePath="+dest) || !strings.Contains(out, "responseHeaders=") {
		t.Fatalf("unexpected output %q", out)
	}
	b, err := os.ReadFile(dest)
	if err != nil || string(b) != "samuel jackson, dwayne johnson, christopher walken" {
		t.Fatalf("file: %q %v", b, err)
	}
}

func TestRunCmd_ConfigStoreHistoryAndContext(t *testing.T) {
	srv := usersServer(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
fetch:
  url: %s/feeds/users
  hdfsFilePath: %s
  numRetries: 0
  requestHeaders:
    Authorization: "Bearer ${token}"
env:
  - name: token
    value: t0k3n
store:
  type: sqlite
  sqlite:
    path: %s
metrics:
  textfile: %s
logging:
  level: error
`, srv.URL, filepath.Join(dir, "users.txt"), filepath.Join(dir, "history.db"), filepath.Join(dir, "apifetch.prom")))
	cfg := map[string]any{"config": cfgPath}

	if _, err := execute(t, RunCmd, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "apifetch.prom")); err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}

	out, err := execute(t, HistoryCmd, cfg)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "RUN ID") || !strings.Contains(out, srv.URL+"/feeds/users") || !strings.Contains(out, " ok ") {
		t.Fatalf("unexpected history output:\n%s", out)
	}

	out, err = execute(t, ContextCmd, cfg, "get", "filePath")
	if err != nil || strings.TrimSpace(out) != filepath.Join(dir, "users.txt") {
		t.Fatalf("context get filePath: %q %v", out, err)
	}
	out, err = execute(t, ContextCmd, cfg, "get", "responseHeaders", "X-Request-Auth")
	if err != nil || strings.TrimSpace(out) != "Bearer t0k3n" {
		t.Fatalf("context get with path: %q %v", out, err)
	}
	if _, err := execute(t, ContextCmd, cfg, "get", "responseHeaders", "Missing"); err == nil {
		t.Fatalf("expected error for missing gjson path")
	}
}

func TestValidateCmd_ReportsEveryFailure(t *testing.T) {
	chdir(t, t.TempDir())
	out, err := execute(t, ValidateCmd, nil, "--url", "test_url", "--method", "PUT", "--connect-timeout", "-1", "--path", "/tmp/x.txt")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, field := range []string{"url:", "method:", "connectTimeout:"} {
		if !strings.Contains(out, field) {
			t.Fatalf("output missing %s failure:\n%s", field, out)
		}
	}
	if !strings.Contains(out, "Found 3 failure(s)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestValidateCmd_ValidAndDeferred(t *testing.T) {
	chdir(t, t.TempDir())
	out, err := execute(t, ValidateCmd, nil, "--url", "${base}/feeds/users", "--path", "/tmp/users.txt")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Resolved at run time: url") || !strings.Contains(out, "Configuration is valid.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestHistoryCmd_RequiresStore(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := execute(t, HistoryCmd, nil); err == nil || !strings.Contains(err.Error(), "no store configured") {
		t.Fatalf("expected missing store error, got %v", err)
	}
}

func TestLoadDoc_ExplicitMissingFileFails(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := loadDoc(viper.GetViper()); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}

// chdir changes the working directory to dir for the duration of the test,
// restoring the previous directory on cleanup (equivalent of Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
