package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"storefront/config"
	"storefront/internal/logger"
)

var indexModel string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage vector indexes",
}

var indexEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create missing vector indexes",
	Long: `Create the vector index of each model profile when it does not exist yet.
The dimension comes from the profile, or from the embedder when the profile
leaves it unset. An existing index with a different dimension is an error.

Examples:
  storefront index ensure
  storefront index ensure --model gemini`,
	RunE: runIndexEnsure,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexEnsureCmd)
	indexEnsureCmd.Flags().StringVarP(&indexModel, "model", "m", "", "model profile (default: every profile)")
}

func runIndexEnsure(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var models []config.ModelConfig
	if indexModel != "" {
		m, ok := a.cfg.Model(indexModel)
		if !ok {
			return fmt.Errorf("unknown model: %s", indexModel)
		}
		models = append(models, m)
	} else {
		models = a.cfg.Models
	}

	for _, m := range models {
		dim := m.Dimension
		if dim <= 0 {
			profile, err := a.models.Profile(m.Name)
			if err != nil {
				return err
			}
			dim = profile.Embedder.Dimension()
		}
		if dim <= 0 {
			return fmt.Errorf("model %s: dimension unknown, set it in the config", m.Name)
		}

		if err := a.index.EnsureIndex(cmd.Context(), m.Index, dim); err != nil {
			return fmt.Errorf("ensure index %s: %w", m.Index, err)
		}
		log.Info("index ready", logger.F("model", m.Name), logger.F("index", m.Index), logger.F("dimension", dim))
		fmt.Printf("  %-10s %s (dimension %d)\n", m.Name, m.Index, dim)
	}
	return nil
}
