package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"storefront/internal/adapter/dataset"
	"storefront/internal/usecase"
)

var (
	seedIncludes []string
	seedExcludes []string
	seedLimit    int
	seedDryRun   bool
)

var seedCmd = &cobra.Command{
	Use:   "seed [path]",
	Short: "Import products from dataset CSV files",
	Long: `Import products from CSV files with name, categories, description, price and
images columns. Each product is written to the database and embedded into
every synced index. Rows without images are skipped.

Examples:
  storefront seed                        # Import dataset/**/*.csv
  storefront seed ./catalog --limit 50
  storefront seed --include "**/*.csv" --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringSliceVar(&seedIncludes, "include", nil, "glob patterns of files to import (default from config)")
	seedCmd.Flags().StringSliceVar(&seedExcludes, "exclude", nil, "glob patterns of files to skip (default from config)")
	seedCmd.Flags().IntVar(&seedLimit, "limit", 0, "stop after this many products")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "validate rows without writing")
}

func runSeed(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Scanning %s...\n", path)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Seeding[reset]"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var warnings []string
	report, err := a.seedService(seedIncludes, seedExcludes).Seed(cmd.Context(), path, usecase.SeedOptions{
		Limit:  seedLimit,
		DryRun: seedDryRun,
		OnRow: func(file string, row dataset.Row, err error) {
			bar.Add(1)
			if err != nil {
				rel, _ := filepath.Rel(path, file)
				warnings = append(warnings, fmt.Sprintf("%s:%d: %v", rel, row.Line, err))
			}
		},
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	if seedDryRun {
		fmt.Printf("\nDry run complete:\n")
	} else {
		fmt.Printf("\nSeeding complete:\n")
	}
	fmt.Printf("  Files:        %d\n", report.Files)
	fmt.Printf("  Rows:         %d\n", report.Rows)
	fmt.Printf("  Created:      %d\n", report.Created)
	fmt.Printf("  No images:    %d (skipped)\n", report.NoImages)
	fmt.Printf("  Invalid:      %d (skipped)\n", report.Invalid)
	if report.SyncFailed > 0 {
		fmt.Printf("  Sync failed:  %d (run 'storefront reembed' to repair)\n", report.SyncFailed)
	}

	if len(warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	return nil
}
