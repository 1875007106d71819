package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"utforge/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Store.Enabled {
			return fmt.Errorf("run history is disabled in configuration")
		}
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tID\tSTAGE\tSTATUS\tTESTS\tPASS\tFAIL\tCOVERAGE")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%.8s\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				r.ID, r.Stage, r.Status, r.TotalTests, r.Passed, r.Failed, r.OverallCoverage)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}
