package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/loykin/apifetch"
	"github.com/loykin/apifetch/cmd/apifetch/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DefaultConfigPath is read when --config is not given; a missing file is fine.
const DefaultConfigPath = "./config/config.yaml"

// fetchFlags maps command-line flags to fetch property keys. Viper keys are "fetch.<property>".
var fetchFlags = []struct {
	flag, property, usage string
}{
	{"url", "url", "URL to fetch"},
	{"path", "hdfsFilePath", "destination path (local, file://, s3://, webhdfs://, hdfs://)"},
	{"method", "method", "request method (GET or POST)"},
	{"body", "body", "request body"},
	{"retries", "numRetries", "number of retries after the first attempt"},
	{"connect-timeout", "connectTimeout", "connect timeout in milliseconds (0 = none)"},
	{"read-timeout", "readTimeout", "read timeout in milliseconds (0 = none)"},
	{"output-format", "outputFormat", "Text or Binary"},
	{"charset", "charset", "charset for the request body and Text responses"},
	{"follow-redirects", "followRedirects", "follow HTTP redirects (true or false)"},
	{"disable-ssl-validation", "disableSSLValidation", "skip TLS certificate and hostname checks (true or false)"},
}

// addFetchFlags registers the fetch flags on cmd.
func addFetchFlags(cmd *cobra.Command) {
	for _, f := range fetchFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringArray("header", nil, "request header as key:value (repeatable)")
}

// commandContext returns the context cobra was executed with, or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadDoc reads the config file named by "config", or the default path when unset.
func loadDoc(v *viper.Viper) (*config.ConfigDoc, error) {
	doc := &config.ConfigDoc{}
	path := strings.TrimSpace(v.GetString("config"))
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if err := doc.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return doc, nil
}

// properties merges the file's fetch section with flag and APIFETCH_FETCH_* overrides.
func properties(cmd *cobra.Command, doc *config.ConfigDoc, v *viper.Viper) map[string]string {
	props := doc.Properties()
	for _, f := range fetchFlags {
		key := "fetch." + f.property
		// bound here since several commands share the keys
		if fl := cmd.Flags().Lookup(f.flag); fl != nil {
			_ = v.BindPFlag(key, fl)
		}
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				props[f.property] = s
			}
		}
	}
	if fl := cmd.Flags().Lookup("header"); fl != nil && fl.Changed {
		if hs, err := cmd.Flags().GetStringArray("header"); err == nil && len(hs) > 0 {
			props["requestHeaders"] = strings.Join(hs, "\n")
		}
	} else if v.IsSet("fetch.requestHeaders") {
		props["requestHeaders"] = v.GetString("fetch.requestHeaders")
	}
	return props
}

// openStore opens the configured history store, or returns nil when none is configured.
func openStore(ctx context.Context, doc *config.ConfigDoc) (*apifetch.Store, error) {
	sc := doc.Store.ToStoreConfig()
	if sc == nil {
		return nil, nil
	}
	return apifetch.OpenStore(ctx, *sc)
}

// requireStore is openStore for commands that cannot work without history.
func requireStore(ctx context.Context, doc *config.ConfigDoc) (*apifetch.Store, error) {
	st, err := openStore(ctx, doc)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New("no store configured (set store.type in the config file)")
	}
	return st, nil
}
