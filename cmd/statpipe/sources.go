package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courtdata/statpipe/pkg/pipeline"
)

// Version is set at build time.
var Version = "0.1.0"

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered source adapters",
	Run: func(cmd *cobra.Command, _ []string) {
		for _, key := range pipeline.RegisteredSources() {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "statpipe %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(versionCmd)
}
