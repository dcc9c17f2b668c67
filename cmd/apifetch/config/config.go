package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/apifetch"
	"github.com/loykin/apifetch/internal/retry"
	"github.com/loykin/apifetch/internal/sink"
	"github.com/loykin/apifetch/internal/store/postgresql"
	"github.com/loykin/apifetch/internal/util"
	"gopkg.in/yaml.v3"
)

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type EnvConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Value        string `mapstructure:"value" yaml:"value"`
	ValueFromEnv string `mapstructure:"valueFromEnv" yaml:"valueFromEnv"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type StoreConfig struct {
	Disabled bool              `mapstructure:"disabled" yaml:"disabled"`
	Type     string            `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteStoreConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
	// Optional table name customization
	TablePrefix     string `mapstructure:"table_prefix" yaml:"table_prefix"`
	TableFetchRuns  string `mapstructure:"table_fetch_runs" yaml:"table_fetch_runs"`
	TableRunContext string `mapstructure:"table_run_context" yaml:"table_run_context"`
}

// ToStoreConfig returns nil when the store is disabled or no type is set.
func (c StoreConfig) ToStoreConfig() *apifetch.StoreConfig {
	if c.Disabled {
		return nil
	}
	typ := util.TrimAndLower(c.Type)
	if typ == "" {
		return nil
	}
	cfg := &apifetch.StoreConfig{
		TableNames: apifetch.BuildTableNames(c.TablePrefix, c.TableFetchRuns, c.TableRunContext),
	}
	switch typ {
	case "postgres", "postgresql", "pg":
		pg := c.Postgres
		cfg.Driver = apifetch.DriverPostgresql
		cfg.DriverConfig = &pg
	default:
		cfg.Driver = apifetch.DriverSqlite
		cfg.DriverConfig = &apifetch.SqliteConfig{Path: util.TrimWithDefault(c.SQLite.Path, apifetch.StoreDBFileName)}
	}
	return cfg
}

// SinkConfig holds per-sink settings; string values may use env templates.
type SinkConfig struct {
	Local   map[string]interface{} `mapstructure:"local" yaml:"local"`
	S3      map[string]interface{} `mapstructure:"s3" yaml:"s3"`
	WebHDFS map[string]interface{} `mapstructure:"webhdfs" yaml:"webhdfs"`
}

type RetryConfig struct {
	InitialDelay string  `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     string  `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier   float64 `mapstructure:"multiplier" yaml:"multiplier"`
}

// ToRetryConfig parses the delays; MaxRetries comes from the fetch settings.
func (c RetryConfig) ToRetryConfig() (*retry.Config, error) {
	rc := retry.DefaultRetryConfig()
	if s, ok := util.TrimEmptyCheck(c.InitialDelay); ok {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid retry.initial_delay %q", c.InitialDelay)
		}
		rc.InitialDelay = d
	}
	if s, ok := util.TrimEmptyCheck(c.MaxDelay); ok {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid retry.max_delay %q", c.MaxDelay)
		}
		rc.MaxDelay = d
	}
	if c.Multiplier != 0 {
		if c.Multiplier < 1 {
			return nil, fmt.Errorf("invalid retry.multiplier %v (must be >= 1)", c.Multiplier)
		}
		rc.BackoffFactor = c.Multiplier
	}
	return rc, nil
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

type ConfigDoc struct {
	// Fetch holds the action properties (url, hdfsFilePath, method, ...).
	Fetch   map[string]interface{} `mapstructure:"fetch" yaml:"fetch"`
	Env     []EnvConfig            `mapstructure:"env" yaml:"env"`
	Sink    SinkConfig             `mapstructure:"sink" yaml:"sink"`
	Store   StoreConfig            `mapstructure:"store" yaml:"store"`
	Retry   RetryConfig            `mapstructure:"retry" yaml:"retry"`
	Metrics MetricsConfig          `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig          `mapstructure:"logging" yaml:"logging"`
}

// Properties flattens the fetch section into the string property map the
// action accepts. requestHeaders may be given as a mapping.
func (c *ConfigDoc) Properties() map[string]string {
	props := make(map[string]string, len(c.Fetch))
	for k, v := range c.Fetch {
		switch val := v.(type) {
		case nil:
			continue
		case map[string]interface{}:
			props[k] = headerLines(val)
		default:
			props[k] = fmt.Sprint(val)
		}
	}
	return props
}

func headerLines(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s:%v", k, m[k]))
	}
	return strings.Join(lines, "\n")
}

func (c *ConfigDoc) GetEnv() (*apifetch.Env, error) {
	base := apifetch.NewEnv()
	for _, kv := range c.Env {
		if kv.Name == "" {
			continue
		}
		val := kv.Value
		if envVar, hasEnvVar := util.TrimEmptyCheck(kv.ValueFromEnv); val == "" && hasEnvVar {
			val = os.Getenv(envVar)
			if val == "" {
				slog.Warn("env variable requested but empty or not set", "name", kv.Name, "env_var", kv.ValueFromEnv)
			}
		}
		base.SetGlobal(kv.Name, val)
	}
	return base, nil
}

// SinkResolver renders string values of every sink section against e.
func (c *ConfigDoc) SinkResolver(e *apifetch.Env) *sink.Resolver {
	return sink.NewResolver(map[string]map[string]interface{}{
		"local":   renderSection(c.Sink.Local, e),
		"s3":      renderSection(c.Sink.S3, e),
		"webhdfs": renderSection(c.Sink.WebHDFS, e),
	})
}

func renderSection(section map[string]interface{}, e *apifetch.Env) map[string]interface{} {
	if section == nil {
		return nil
	}
	out := make(map[string]interface{}, len(section))
	for k, v := range section {
		if s, ok := v.(string); ok && e != nil {
			out[k] = e.RenderGoTemplate(s)
			continue
		}
		out[k] = v
	}
	return out
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	// Ensure path points to a regular file to avoid opening directories/special files
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user/CI; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	return dec.Decode(c)
}

func (c *ConfigDoc) parseLogLevel() (apifetch.LogLevel, error) {
	switch util.TrimAndLower(c.Logging.Level) {
	case "error":
		return apifetch.LogLevelError, nil
	case "warn", "warning":
		return apifetch.LogLevelWarn, nil
	case "info", "":
		return apifetch.LogLevelInfo, nil
	case "debug":
		return apifetch.LogLevelDebug, nil
	default:
		return apifetch.LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := c.parseLogLevel()
	if err != nil {
		return err
	}

	var logger *apifetch.Logger
	format := util.TrimAndLower(c.Logging.Format)

	useColor := false
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	} else if format == "color" || format == "colour" {
		useColor = true
	}

	switch format {
	case "json":
		logger = apifetch.NewJSONLogger(level)
	case "color", "colour":
		logger = apifetch.NewColorLogger(level)
	case "text", "":
		if useColor {
			logger = apifetch.NewColorLogger(level)
		} else {
			logger = apifetch.NewLogger(level)
		}
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	logger.EnableMasking(maskingEnabled)
	apifetch.SetDefaultLogger(logger)
	apifetch.EnableMasking(maskingEnabled)

	logger.Debug("logging configured",
		"level", util.TrimWithDefault(util.TrimAndLower(c.Logging.Level), "info"),
		"format", format,
		"color", useColor,
		"mask_sensitive", maskingEnabled)
	return nil
}
