package cmd

import (
	"fmt"
	"os"

	"github.com/theirongolddev/costroll/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.Path()
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := configPath()
	fmt.Printf("  Config file: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Database: %s\n", cfg.DatabasePath())
	fmt.Printf("    Currency: %s\n", cfg.General.Currency)
	if cfg.General.Actor != "" {
		fmt.Printf("    Actor:    %s\n", cfg.General.Actor)
	} else {
		fmt.Println("    Actor:    not set (required for changes)")
	}
	fmt.Println()

	fmt.Println("  [Rollup]")
	fmt.Printf("    Attribution:     %s\n", cfg.Rollup.Attribution)
	fmt.Printf("    Source timeout:  %s\n", cfg.Rollup.SourceTimeout)
	fmt.Printf("    Max attempts:    %d\n", cfg.Rollup.MaxAttempts)
	fmt.Printf("    Initial backoff: %s\n", cfg.Rollup.InitialBackoff)
	fmt.Printf("    Best effort:     %v\n", cfg.Rollup.BestEffort)
	fmt.Println()

	fmt.Println("  [Server]")
	fmt.Printf("    Address:          %s\n", cfg.Server.Addr)
	fmt.Printf("    Refresh interval: %s\n", cfg.Server.RefreshInterval)
	fmt.Printf("    Events buffer:    %d\n", cfg.Server.EventsBuffer)
	fmt.Println()

	fmt.Println("  Run `costroll setup` to reconfigure.")
	return nil
}
