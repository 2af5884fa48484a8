package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"storefront/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to storefront.yaml",
	Long: `Write the configuration currently in effect (defaults, file and environment
overrides) to storefront.yaml in the root directory.`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(GetRootDir(), "storefront.yaml")
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	// Reload so the file keeps relative paths.
	var c *config.Config
	var err error
	if cfgFile != "" {
		c, err = config.Load(cfgFile)
	} else {
		c, err = config.LoadFromDir(GetRootDir())
	}
	if err != nil {
		return err
	}
	if err := c.Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}
