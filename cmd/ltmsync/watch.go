package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/ltmsync/internal/journal"
	"github.com/dokzlo13/ltmsync/internal/watch"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the device converged with periodic passes",
	Long: `watch loads the declaration once, converges immediately and then
re-runs the pass on every interval tick until interrupted. Drift
introduced on the device between ticks is driven back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := setup()
		if err != nil {
			return err
		}

		res, err := loadDeclaration(declPath)
		if err != nil {
			return err
		}

		jrnl, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		runner := watch.NewRunner(client, jrnl, watch.Options{
			Interval:     cfg.Watch.Interval.Duration(),
			RateLimitRPS: cfg.Watch.RateLimitRPS,
			Retention:    time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour,
		})
		return runner.Run(signalContext(), res)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
