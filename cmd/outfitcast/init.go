package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"outfitcast/internal/cmdlog"
	"outfitcast/internal/config"
	"outfitcast/internal/theme"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to the --config path.

Empty fields are filled from the environment (DATA_DIRECTORY, INFO_DIRECTORY,
WEATHER_API_KEY, OUTFITCAST_DB, METRICS_ADDR) when the config is loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("init", func() error {
			if err := config.Save(cfgPath, config.Default()); err != nil {
				return err
			}
			abs, _ := filepath.Abs(cfgPath)
			theme.PrintBanner()
			fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
			return nil
		})
	},
}
