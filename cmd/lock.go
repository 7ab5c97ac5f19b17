package cmd

import (
	"fmt"

	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/model"

	"github.com/spf13/cobra"
)

var flagExpectedVersion int64

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock a project's original budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSetLock(cmd, true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock a project's original budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSetLock(cmd, false)
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the lock state",
	RunE:  runLockStatus,
}

var lockHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show who locked and unlocked the budget, and when",
	RunE:  runLockHistory,
}

func init() {
	for _, c := range []*cobra.Command{lockCmd, unlockCmd} {
		c.Flags().Int64Var(&flagExpectedVersion, "expected-version", 0, "Only apply if the lock is still at this version")
	}
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockHistoryCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
}

func runSetLock(cmd *cobra.Command, locked bool) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	actor, err := a.requireActor()
	if err != nil {
		return err
	}

	req := model.LockRequest{ProjectID: project, Locked: locked, ActorID: actor}
	if cmd.Flags().Changed("expected-version") {
		v := flagExpectedVersion
		req.ExpectedVersion = &v
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := a.budget.SetLockState(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	fmt.Print(cli.RenderLockState(st))
	return nil
}

func runLockStatus(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := a.budget.LockState(ctx, project)
	if err != nil {
		return err
	}
	fmt.Print(cli.RenderLockState(st))
	return nil
}

func runLockHistory(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	events, err := a.budget.LockHistory(ctx, project)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("  No lock changes recorded for %s.\n", project)
		return nil
	}
	fmt.Print(cli.RenderLockHistory(project, events))
	return nil
}
