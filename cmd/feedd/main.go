package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "feedd",
	Short: "feedd - resilient multi-source crypto price feed",
	Long: `feedd polls multiple upstream price providers in priority order,
merges their answers into a single snapshot and serves it over a
read-only HTTP API. Provider failures are absorbed by falling through
to the next source; a total outage keeps the last snapshot available,
marked stale.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
