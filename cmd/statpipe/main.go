// Command statpipe runs backfills of external sports-statistics sources into
// canonical DuckDB tables.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
