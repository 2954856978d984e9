package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/ltmsync/internal/config"
	"github.com/dokzlo13/ltmsync/internal/journal"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pass outcomes from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		jrnl, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		entries, err := jrnl.Recent(historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tRESOURCE\tACTION\tCHANGED\tDRY RUN\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Kind, e.Key, e.Action, e.Changed, e.DryRun, e.Error)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}
