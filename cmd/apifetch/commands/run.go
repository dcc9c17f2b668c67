package commands

import (
	"errors"
	"fmt"

	"github.com/loykin/apifetch"
	"github.com/loykin/apifetch/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the configured URL and write the response to the destination path",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		ctx := commandContext(cmd)

		doc, err := loadDoc(v)
		if err != nil {
			return err
		}
		if err := doc.SetupLogging(); err != nil {
			return err
		}
		rc, err := doc.GetEnv()
		if err != nil {
			return err
		}
		cfg, err := apifetch.ConfigFromProperties(properties(cmd, doc, v))
		if err != nil {
			printFailures(cmd, err)
			return err
		}
		retryCfg, err := doc.Retry.ToRetryConfig()
		if err != nil {
			return err
		}

		ex := apifetch.Executor{
			Sinks:           doc.SinkResolver(rc),
			Retry:           retryCfg,
			Logger:          apifetch.GetLogger(),
			MetricsTextfile: doc.Metrics.Textfile,
		}
		if doc.Metrics.Textfile != "" {
			ex.Metrics = metrics.New()
		}
		st, err := openStore(ctx, doc)
		if err != nil {
			return err
		}
		if st != nil {
			defer func() { _ = st.Close() }()
			ex.Store = st
		}

		if _, err := ex.Execute(ctx, cfg, rc); err != nil {
			printFailures(cmd, err)
			return err
		}
		out := cmd.OutOrStdout()
		pub, keys := rc.Published()
		for _, k := range keys {
			_, _ = fmt.Fprintf(out, "%s=%s\n", k, pub[k])
		}
		return nil
	},
}

// printFailures lists every configuration failure, one per line.
func printFailures(cmd *cobra.Command, err error) {
	var ve *apifetch.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	for _, f := range ve.Failures {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", f)
	}
}

func init() {
	addFetchFlags(RunCmd)
}
