package main

import (
	"github.com/spf13/cobra"

	"outfitcast/internal/catalog"
	"outfitcast/internal/cmdlog"
	"outfitcast/internal/corpus"
	"outfitcast/internal/dataset"
	"outfitcast/internal/logging"
	"outfitcast/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(diagnosticsCmd)
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Load the dataset and print counts and tensor shapes",
	Long: `Load the normalized dataset, from the tensor cache when all four
artifacts exist and from the corpus otherwise, then print outfit counts,
tensor shapes, embedding input sizes and the first sample.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("diagnostics", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cache := dataset.New(cfg.CacheDir())
			ds, _, err := pipeline.LoadDataset(cmd.Context(), cache, corpus.Dir{Root: cfg.Paths.DataDir})
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.TypesMappingPath(), cfg.TagsMappingPath())
			if err != nil {
				logging.Warn("diagnostics_no_catalog", map[string]any{"error": err.Error()})
				cat = nil
			}
			return pipeline.Summarize(ds, cat, cache.Size()).Write(cmd.OutOrStdout(), ds)
		})
	},
}
