package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Gated delivery pipelines for AI workers",
	Long:  "steward — a CLI that drives work requests through classification,\ngated document production, and supervised implementation.\nYou approve the stops. Workers do the work.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(unitCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(rejectCmd)
}
