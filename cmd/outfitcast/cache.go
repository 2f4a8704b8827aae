package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"outfitcast/internal/cmdlog"
	"outfitcast/internal/dataset"
)

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheInfoCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the tensor cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached tensors so the next load re-normalizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("cache_clear", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := dataset.New(cfg.CacheDir())
			freed := c.Size()
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s (%s)\n", c.Dir, humanize.Bytes(uint64(freed)))
			return nil
		})
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show whether the cache is complete and its size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("cache_info", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := dataset.New(cfg.CacheDir())
			fmt.Fprintf(cmd.OutOrStdout(), "dir:      %s\ncomplete: %t\nsize:     %s\n", c.Dir, c.Exists(), humanize.Bytes(uint64(c.Size())))
			return nil
		})
	},
}
