// Package cmd implements the costroll CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/theirongolddev/costroll/internal/budget"
	"github.com/theirongolddev/costroll/internal/config"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/rollup"
	"github.com/theirongolddev/costroll/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagConfig  string
	flagActor   string
	flagProject string
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "costroll",
	Short: "Construction budget rollup engine",
	Long: "Maintain original budget lines, lock budgets, and roll change orders,\n" +
		"commitments and direct costs up into a per-cost-code financial view.",
	SilenceUsage: true,
}

// exitTempFail is returned for errors the caller can retry after re-reading.
const exitTempFail = 75

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if model.Retryable(err) {
			os.Exit(exitTempFail)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Budget database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default "+config.Path()+")")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "Actor id recorded on changes (default general.actor)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Project id")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}
	if flagDB != "" {
		cfg.General.Database = flagDB
	}
	if flagActor != "" {
		cfg.General.Actor = flagActor
	}
	return cfg, nil
}

// app bundles the collaborators every data command needs.
type app struct {
	cfg    config.Config
	store  *store.Store
	budget *budget.Service
	engine *rollup.Engine
}

// openApp loads config, opens the database and builds the services on it.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts, err := engineOptions(cfg.Rollup)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		store:  st,
		budget: budget.NewService(st),
		engine: rollup.NewEngine(rollup.FromStore(st), opts),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func engineOptions(rc config.RollupConfig) (rollup.Options, error) {
	opts := rollup.DefaultOptions()
	attr, err := rollup.ParseAttribution(rc.Attribution)
	if err != nil {
		return opts, err
	}
	opts.Attribution = attr
	if rc.SourceTimeout.Duration > 0 {
		opts.SourceTimeout = rc.SourceTimeout.Duration
	}
	if rc.MaxAttempts > 0 {
		opts.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoff.Duration > 0 {
		opts.InitialBackoff = rc.InitialBackoff.Duration
	}
	return opts, nil
}

// requireProject returns the --project value or a usage error.
func requireProject() (string, error) {
	p := strings.TrimSpace(flagProject)
	if p == "" {
		return "", errors.New("--project is required")
	}
	return p, nil
}

// requireActor returns the acting user for mutations.
func (a *app) requireActor() (string, error) {
	actor := strings.TrimSpace(a.cfg.General.Actor)
	if actor == "" {
		return "", errors.New("an actor is required: pass --actor or set general.actor (costroll setup)")
	}
	return actor, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func progressf(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
