package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/kreport/internal/storage"
)

var (
	limitHours   float64
	limitSeconds int64
	settingsMins float64
)

var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Manage daily limit overrides",
}

var limitSetCmd = &cobra.Command{
	Use:   "set CHILD_ID",
	Short: "Set a child's daily limit override",
	Long:  `Set an explicit daily limit for a child. It takes precedence over the child's settings and the default.`,
	Example: `  kreport limit set 6f1c2a --hours 1.5
  kreport limit set 6f1c2a --seconds 5400`,
	Args: cobra.ExactArgs(1),
	RunE: runLimitSet,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage per-child settings",
}

var settingsSetCmd = &cobra.Command{
	Use:     "set CHILD_ID",
	Short:   "Set a child's time limit setting",
	Example: `  kreport settings set 6f1c2a --minutes 90`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSettingsSet,
}

var activeCmd = &cobra.Command{
	Use:   "active [CHILD_ID]",
	Short: "Show or change the active child",
	Long: `With no argument, print the active child. With CHILD_ID, select it; running
servers regenerate their dashboards. Use --clear to deselect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActive,
}

var activeClear bool

func init() {
	limitSetCmd.Flags().Float64Var(&limitHours, "hours", 0, "Daily limit in hours")
	limitSetCmd.Flags().Int64Var(&limitSeconds, "seconds", 0, "Daily limit in seconds")
	limitSetCmd.MarkFlagsMutuallyExclusive("hours", "seconds")
	limitSetCmd.MarkFlagsOneRequired("hours", "seconds")
	limitCmd.AddCommand(limitSetCmd)
	rootCmd.AddCommand(limitCmd)

	settingsSetCmd.Flags().Float64Var(&settingsMins, "minutes", 0, "Daily time limit in minutes")
	settingsSetCmd.MarkFlagRequired("minutes")
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)

	activeCmd.Flags().BoolVar(&activeClear, "clear", false, "Clear the active child")
	rootCmd.AddCommand(activeCmd)
}

func runLimitSet(cmd *cobra.Command, args []string) error {
	childID := args[0]

	seconds := limitSeconds
	if cmd.Flags().Changed("hours") {
		if math.IsNaN(limitHours) || math.IsInf(limitHours, 0) {
			return fmt.Errorf("invalid --hours value")
		}
		seconds = int64(math.Round(limitHours * 3600))
	}
	if seconds <= 0 {
		return fmt.Errorf("daily limit must be positive")
	}

	c, err := loadCLI()
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.store.Limits().SaveTimeLimitOverride(ctx, childID, seconds); err != nil {
		return fmt.Errorf("failed to save limit: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Printf("✅ Daily limit for %s set to %d min\n", childID, int64(math.Round(float64(seconds)/60)))

	return announceIfActive(ctx, c.store.ActiveChild(), childID)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	childID := args[0]

	if math.IsNaN(settingsMins) || math.IsInf(settingsMins, 0) || settingsMins <= 0 {
		return fmt.Errorf("--minutes must be a positive number")
	}

	c, err := loadCLI()
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	setting := storage.ChildSetting{
		ChildID:          childID,
		TimeLimitMinutes: storage.RawValue(strconv.FormatFloat(settingsMins, 'f', -1, 64)),
	}
	if err := c.store.Settings().UpsertChildSetting(ctx, setting); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Printf("✅ Time limit setting for %s set to %s min\n", childID, setting.TimeLimitMinutes)

	return announceIfActive(ctx, c.store.ActiveChild(), childID)
}

func runActive(cmd *cobra.Command, args []string) error {
	c, err := loadCLI()
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case activeClear:
		if err := c.store.ActiveChild().Set(ctx, ""); err != nil {
			return fmt.Errorf("failed to clear active child: %w", err)
		}
		fmt.Println("Active child cleared")
	case len(args) == 1:
		if err := c.store.ActiveChild().Set(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to set active child: %w", err)
		}
		fmt.Printf("Active child: %s\n", args[0])
	default:
		childID, err := c.store.ActiveChild().Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to load active child: %w", err)
		}
		if childID == "" {
			color.New(color.Faint).Println("No child selected")
			return nil
		}
		fmt.Println(childID)
	}

	return nil
}

// announceIfActive re-publishes the selection when childID is the active
// child so running servers pick up the new limit.
func announceIfActive(ctx context.Context, active storage.ActiveChildStore, childID string) error {
	current, err := active.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active child: %w", err)
	}
	if current != childID {
		return nil
	}
	return active.Set(ctx, childID)
}
