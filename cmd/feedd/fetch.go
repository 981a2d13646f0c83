package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/newthinker/feedd/internal/logger"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one refresh cycle and print the snapshot",
	Long: `Runs a single refresh cycle against the configured providers and
prints the resulting snapshot as JSON. Useful for checking provider
connectivity and configuration without starting the server.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	orch, _, err := buildFeed(cfg, log)
	if err != nil {
		return err
	}

	snap := orch.RunCycle(context.Background())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if snap.Stale {
		return fmt.Errorf("no provider produced fresh data")
	}
	return nil
}
