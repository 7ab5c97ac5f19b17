package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costroll/internal/config"
	"github.com/theirongolddev/costroll/internal/rollup"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Load existing config or defaults
	cfg, _ := loadConfig()

	database := cfg.DatabasePath()
	timeout := cfg.Rollup.SourceTimeout.String()
	interval := cfg.Server.RefreshInterval.String()
	save := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to costroll").
				Description("Budget lines, lock state and ledgers live in one SQLite database."),
			huh.NewInput().
				Title("Database path").
				Value(&database).
				Validate(notBlank("database path")),
			huh.NewInput().
				Title("Your actor id").
				Description("Recorded on merges, lock changes and modifications.").
				Value(&cfg.General.Actor).
				Validate(notBlank("actor id")),
			huh.NewSelect[string]().
				Title("Currency").
				Options(huh.NewOptions("USD", "CAD", "EUR", "GBP", "AUD")...).
				Value(&cfg.General.Currency),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Multi-code spend attribution").
				Description("How spend tagged with several cost codes is credited.").
				Options(
					huh.NewOption("Primary: everything to the first cost code", rollup.AttributionPrimary),
					huh.NewOption("Proportional: split by revised budget", rollup.AttributionProportional),
				).
				Value(&cfg.Rollup.Attribution),
			huh.NewInput().
				Title("Per-ledger read timeout").
				Value(&timeout).
				Validate(validDuration),
			huh.NewConfirm().
				Title("Best-effort rollups by default?").
				Description("Unavailable change orders, commitments or costs count as empty and are flagged.").
				Value(&cfg.Rollup.BestEffort),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Server address").
				Value(&cfg.Server.Addr).
				Validate(notBlank("server address")),
			huh.NewInput().
				Title("Rollup refresh interval").
				Value(&interval).
				Validate(validDuration),
			huh.NewConfirm().
				Title("Save configuration?").
				Value(&save),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled.")
			return nil
		}
		return err
	}
	if !save {
		fmt.Println("  Nothing saved.")
		return nil
	}

	cfg.General.Database = strings.TrimSpace(database)
	cfg.Rollup.SourceTimeout.Duration, _ = time.ParseDuration(strings.TrimSpace(timeout))
	cfg.Server.RefreshInterval.Duration, _ = time.ParseDuration(strings.TrimSpace(interval))

	path := configPath()
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `costroll ledger dictionary` to start adding cost codes.")
	fmt.Println()
	return nil
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return errors.New("use a duration like 5s or 1m")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
