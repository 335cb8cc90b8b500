package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		source := cfgManager.ConfigFileUsed()
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Printf("Configuration OK (%s)\n", source)
		fmt.Printf("  OCR engines:  %d configured, preferred %q\n", len(cfg.OCR.Engines), cfg.OCR.PreferredEngine)
		fmt.Printf("  Custom rules: %d\n", len(cfg.Patterns.Custom))
		fmt.Printf("  Keywords:     %d\n", len(cfg.Keywords()))
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
