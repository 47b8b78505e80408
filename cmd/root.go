// Package cmd defines and implements the CLI commands for the pagevet
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagevet",
		Short: "A rule-based website audit service.",
		Long: `pagevet renders a webpage in a headless browser, summarizes what a
visitor would see, and judges the page against a list of human-authored
rules using an LLM oracle. Scans run in rate-limited batches with
checkpoints, so an interrupted scan resumes where it stopped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus PAGEVET_* env)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
