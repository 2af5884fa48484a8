package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"storefront/config"
	"storefront/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
	log      *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront - Hybrid keyword and vector product search",
	Long: `Storefront serves product search that blends exact keyword matches from the
product database with nearest-neighbor matches from a vector index, and keeps
the vector index in step with product writes.

Example usage:
  storefront seed                          # Import dataset/**/*.csv
  storefront index ensure                  # Create missing vector indexes
  storefront search -q "blue lamp"         # Run a hybrid search
  storefront reembed --model gemini        # Rebuild one model's vectors
  storefront serve                         # Start the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		resolvePaths(cfg, rootDir)

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		log = logger.New("main", logger.ParseLevel(level))

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./storefront.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from config)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// openApp builds the shared adapters for a command.
func openApp() (*app, error) {
	if err := config.EnsureDataDir(GetRootDir()); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", config.DataDir(GetRootDir()), err)
	}
	return newApp(GetConfig(), log)
}

// resolvePaths anchors relative local paths at the root directory.
func resolvePaths(c *config.Config, root string) {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	if c.Database.Driver == "sqlite3" {
		c.Database.DSN = anchor(c.Database.DSN)
	}
	c.VectorIndex.Path = anchor(c.VectorIndex.Path)
	c.Reembed.ProgressDir = anchor(c.Reembed.ProgressDir)
}
