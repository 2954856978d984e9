package main

import (
	"github.com/spf13/cobra"
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converge the device to the declaration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(signalContext(), false)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
