package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/kreport/internal/report"
)

var (
	reportJSON bool
)

var reportCmd = &cobra.Command{
	Use:   "report [CHILD_ID]",
	Short: "Print a child's usage report",
	Long: `Build the current usage report for a child and print it. With no CHILD_ID
the active child is used.`,
	Example: `  kreport report 6f1c2a
  kreport report --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	c, err := loadCLI()
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var childID string
	if len(args) == 1 {
		childID = args[0]
	} else {
		childID, err = c.store.ActiveChild().Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to load active child: %w", err)
		}
		if childID == "" {
			return fmt.Errorf("no active child selected; pass CHILD_ID")
		}
	}

	r, err := c.builder.Build(ctx, childID)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	printReport(r)
	return nil
}

// printReport prints a usage report with colors
func printReport(r report.UsageReport) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	fmt.Println()
	cyan.Println(rule)
	cyan.Println("USAGE REPORT")
	cyan.Println(rule)
	fmt.Println()

	fmt.Printf("Child:      %s\n", r.ChildID)
	fmt.Printf("Since:      %s\n", r.WindowStart.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Limit:      %d min (%s)\n", r.LimitMinutes(), r.LimitTier)
	fmt.Printf("Used:       %d min\n", r.UsedMinutes())

	cyan.Print("Remaining:  ")
	if r.RemainingMinutes() > 0 {
		green.Printf("%d min\n", r.RemainingMinutes())
	} else {
		red.Println("0 min")
	}
	fmt.Println()

	cyan.Println("Sites")
	if len(r.Rows) == 0 {
		dim.Println("  No data")
	}
	for _, row := range r.Rows {
		fmt.Printf("  %-32s %5d min\n", row.Domain, row.Minutes)
	}
	fmt.Println()

	cyan.Printf("Blocked attempts: %d\n", r.AttemptCount)
	if r.AttemptCount == 0 {
		dim.Println("  No blocked attempts today")
	}
	for _, a := range r.Attempts {
		when := "unknown time"
		if a.Timestamp != nil {
			when = a.Timestamp.Local().Format("15:04:05")
		}
		red.Printf("  %-12s", when)
		fmt.Printf(" %s\n", a.Domain)
	}

	fmt.Println()
	cyan.Println(rule)
	fmt.Println()
}
