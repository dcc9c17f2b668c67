package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
)

var ContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Read values published by the latest successful run",
}

var contextGetCmd = &cobra.Command{
	Use:   "get <key> [gjson-path]",
	Short: "Print a stored run context value, optionally selecting into its JSON",
	Example: `  apifetch context get filePath
  apifetch context get responseHeaders Content-Type`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		doc, err := loadDoc(viper.GetViper())
		if err != nil {
			return err
		}
		st, err := requireStore(ctx, doc)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		runID, kv, err := st.LatestContext(ctx)
		if err != nil {
			return err
		}
		if runID == "" {
			return fmt.Errorf("no successful run recorded")
		}
		val, ok := kv[args[0]]
		if !ok {
			return fmt.Errorf("run %s did not publish %q", runID, args[0])
		}
		if len(args) == 2 {
			if !gjson.Valid(val) {
				return fmt.Errorf("%s is not JSON", args[0])
			}
			res := gjson.Get(val, args[1])
			if !res.Exists() {
				return fmt.Errorf("path %q not found in %s", args[1], args[0])
			}
			val = res.String()
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

func init() {
	ContextCmd.AddCommand(contextGetCmd)
}
