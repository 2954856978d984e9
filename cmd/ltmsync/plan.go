package main

import (
	"github.com/spf13/cobra"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would change without touching the device",
	Long: `plan runs the same pass as apply with every mutating call skipped.
The changed verdict and the reported fields match what a real apply
would do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(signalContext(), true)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
