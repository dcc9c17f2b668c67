package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyLimit int

var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fetch runs, newest last",
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

		runs, err := st.ListRuns(ctx)
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[len(runs)-historyLimit:]
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			_, _ = fmt.Fprintln(out, "No runs recorded")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SEQ\tRUN ID\tSTATUS\tATTEMPTS\tCODE\tBYTES\tMETHOD\tURL\tDESTINATION\tRAN AT")
		for _, r := range runs {
			status := "ok"
			if r.Failed {
				status = "failed"
			}
			code := "-"
			if r.StatusCode > 0 {
				code = strconv.Itoa(r.StatusCode)
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.Seq, r.ID, status, r.Attempts, code, r.Bytes, r.Method, r.URL, r.Destination, r.RanAt)
		}
		return w.Flush()
	},
}

func init() {
	HistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the last N runs (0 = all)")
}
