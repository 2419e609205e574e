package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/kreport/internal/config"
	"github.com/goodtune/kreport/internal/domain"
	"github.com/goodtune/kreport/internal/limits"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check report inputs interactively",
	Long:  `Check how kreport resolves a child's daily limit or reports a site.`,
}

var checkLimitCmd = &cobra.Command{
	Use:   "limit CHILD_ID",
	Short: "Check which limit tier applies to a child",
	Long:  `Resolve a child's effective daily limit and show which tier supplied it.`,
	Example: `  kreport -c config.yaml check limit 6f1c2a
  kreport check limit 6f1c2a`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckLimit,
}

var checkSiteCmd = &cobra.Command{
	Use:   "site SITE...",
	Short: "Check how sites are normalized and filtered",
	Long:  `Show the domain each raw site or app is reported under, and whether it is hidden as infrastructure.`,
	Example: `  kreport check site https://www.youtube.com/watch?v=x
  kreport check site bbc.co.uk fonts.gstatic.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckSite,
}

func init() {
	checkCmd.AddCommand(checkLimitCmd)
	checkCmd.AddCommand(checkSiteCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadCLI loads configuration and wires the pipeline with a quiet logger
func loadCLI() (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	return buildComponents(cfg, logger)
}

func runCheckLimit(cmd *cobra.Command, args []string) error {
	childID := args[0]

	c, err := loadCLI()
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limit := c.resolver.Resolve(ctx, childID)

	printLimitResult(childID, limit)

	return nil
}

func runCheckSite(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ignore := domain.NewIgnoreList(cfg.Report.IgnoreSuffixes)

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println(rule)
	cyan.Println("SITE CHECK")
	cyan.Println(rule)
	fmt.Println()

	for _, raw := range args {
		d := domain.Normalize(raw)
		fmt.Printf("%-40s → %-24s ", raw, d)
		if ignore.IsIgnored(d) {
			yellow.Println("IGNORED")
		} else {
			green.Println("REPORTED")
		}
	}

	fmt.Println()
	cyan.Println(rule)
	fmt.Println()

	return nil
}

// printLimitResult prints the limit check result with colors
func printLimitResult(childID string, limit limits.Limit) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println(rule)
	cyan.Println("DAILY LIMIT CHECK")
	cyan.Println(rule)
	fmt.Println()

	fmt.Printf("Child:      %s\n", childID)
	fmt.Printf("Limit:      %d min (%d s)\n", limit.Minutes(), limit.Seconds)
	fmt.Println()

	cyan.Print("Tier:       ")
	switch limit.Tier {
	case limits.TierOverride:
		green.Println("OVERRIDE")
		fmt.Println("            → An explicit daily limit is set for this child")
	case limits.TierChildSetting:
		green.Println("CHILD SETTING")
		fmt.Println("            → No override; the child's time_limit_minutes applies")
	default:
		yellow.Println("DEFAULT")
		fmt.Println("            → No override or usable child setting was found")
	}

	fmt.Println()
	cyan.Println(rule)
	fmt.Println()
}
