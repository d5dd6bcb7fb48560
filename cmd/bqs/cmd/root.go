// Package cmd provides the command-line interface of bqs.
package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bqs",
	Short: "bqs routes buffers between hardware queues.",
	Long: `bqs routes buffers between hardware queues, queue groups and ` +
		`remote fabric tags. The run command starts a router over the ` +
		`in-memory driver with the topology given in the configuration.`,
	SilenceUsage: true,
}

// Execute runs the command selected by the command-line arguments.
func Execute() error {
	return rootCmd.Execute()
}
