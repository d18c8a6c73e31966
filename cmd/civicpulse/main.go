package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "civicpulse",
	Short:         "Community feedback backend",
	Long:          "CivicPulse collects resident feedback and serves categorized, summarized views of it.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		// An unknown subcommand gets the full usage text, not just
		// the one-line error.
		if _, _, findErr := rootCmd.Find(os.Args[1:]); findErr != nil {
			rootCmd.Usage()
		}
		os.Exit(1)
	}
}
