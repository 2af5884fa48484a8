package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"storefront/internal/adapter/checkpoint"
	"storefront/internal/logger"
	"storefront/internal/usecase"
)

var (
	reembedModel     string
	reembedMode      string
	reembedBatchSize int
	reembedDelay     time.Duration
	reembedReset     bool
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Regenerate product vectors for a model",
	Long: `Embed every product with one model profile and upsert the vectors into its
index. Progress is checkpointed per model, so an interrupted run picks up
where it stopped. Without --model every synced profile is rebuilt.

Examples:
  storefront reembed --model gemini
  storefront reembed --model openai --mode parallel --batch-size 5
  storefront reembed --model voyage --reset`,
	RunE: runReembed,
}

func init() {
	rootCmd.AddCommand(reembedCmd)
	reembedCmd.Flags().StringVarP(&reembedModel, "model", "m", "", "model profile (default: every synced profile)")
	reembedCmd.Flags().StringVar(&reembedMode, "mode", "", "sequential or parallel (default from config)")
	reembedCmd.Flags().IntVar(&reembedBatchSize, "batch-size", 0, "products per batch (default from config)")
	reembedCmd.Flags().DurationVar(&reembedDelay, "delay", 0, "pause between items or batches, 0 disables (default from config)")
	reembedCmd.Flags().BoolVar(&reembedReset, "reset", false, "discard the checkpoint and start over")
}

func runReembed(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	models := []string{reembedModel}
	if reembedModel == "" {
		profiles, err := a.models.Synced()
		if err != nil {
			if len(profiles) == 0 {
				return err
			}
			log.Warn("skipping models that cannot be built", logger.Err(err))
		}
		models = models[:0]
		for _, p := range profiles {
			models = append(models, p.Name)
		}
	}

	svc := a.reembedService()
	progress := checkpoint.NewFileStore(a.cfg.Reembed.ProgressDir)

	for _, model := range models {
		products, err := a.repo.List(cmd.Context(), 0)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		pending := len(products)
		if !reembedReset {
			cp, err := progress.Load(model)
			if err != nil {
				return err
			}
			done := cp.Done()
			for _, p := range products {
				if done[p.ID] {
					pending--
				}
			}
		}
		fmt.Printf("Re-embedding %d of %d products with %s...\n", pending, len(products), model)

		opts := usecase.ReembedOptions{
			Model:     model,
			Mode:      reembedMode,
			BatchSize: reembedBatchSize,
			Reset:     reembedReset,
		}
		if cmd.Flags().Changed("delay") {
			opts.Delay = &reembedDelay
		}

		bar, onItem := reembedProgress(pending)
		opts.OnItem = onItem
		report, err := svc.Run(cmd.Context(), opts)
		bar.Finish()
		if err != nil {
			return fmt.Errorf("reembed %s failed: %w", model, err)
		}

		fmt.Printf("\nRe-embedding complete (%s):\n", report.Model)
		fmt.Printf("  Products:   %d\n", report.Total)
		fmt.Printf("  Processed:  %d\n", report.Processed)
		fmt.Printf("  Skipped:    %d (already done)\n", report.Skipped)
		fmt.Printf("  Failed:     %d\n", report.Failed)
		fmt.Printf("  Took:       %s\n", formatDuration(report.Duration))
		fmt.Printf("\nCheckpoint stored at: %s\n", progress.Path(report.Model))
	}
	return nil
}

// reembedProgress returns a progress bar and the per-item callback that
// advances it. The callback may run on several goroutines.
func reembedProgress(total int) (*progressbar.ProgressBar, func(int64, error)) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var mu sync.Mutex
	start := time.Now()
	processed := 0
	failed := 0

	return bar, func(id int64, err error) {
		mu.Lock()
		defer mu.Unlock()

		processed++
		if err != nil {
			failed++
		}
		bar.Add(1)

		elapsed := time.Since(start)
		rate := float64(processed) / elapsed.Seconds()
		remaining := total - processed
		if rate > 0 && remaining > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s failed: %d", formatDuration(eta), failed))
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
