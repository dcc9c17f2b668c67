package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/apifetch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the fetch settings and report every failure",
	Long: `Validate the fetch settings from the config file, flags and APIFETCH_FETCH_*
variables without making a request. Every violated rule is reported, tagged with
its field. Fields holding placeholders are resolved only at run time and are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		doc, err := loadDoc(v)
		if err != nil {
			return err
		}
		cfg, err := apifetch.ConfigFromProperties(properties(cmd, doc, v))
		var failures apifetch.Failures
		var ve *apifetch.ValidationError
		if errors.As(err, &ve) {
			failures = append(failures, ve.Failures...)
		} else if err != nil {
			return err
		}
		failures = append(failures, cfg.Validate()...)

		out := cmd.OutOrStdout()
		if deferred := cfg.DeferredFields(); len(deferred) > 0 {
			_, _ = fmt.Fprintf(out, "Resolved at run time: %s\n", strings.Join(deferred, ", "))
		}
		if len(failures) > 0 {
			_, _ = fmt.Fprintf(out, "Found %d failure(s):\n", len(failures))
			for _, f := range failures {
				_, _ = fmt.Fprintf(out, "  - %s\n", f)
			}
			return fmt.Errorf("validation completed with %d failure(s)", len(failures))
		}
		_, _ = fmt.Fprintln(out, "Configuration is valid.")
		return nil
	},
}

func init() {
	addFetchFlags(ValidateCmd)
}
