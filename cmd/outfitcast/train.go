package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"outfitcast/internal/catalog"
	"outfitcast/internal/cmdlog"
	"outfitcast/internal/corpus"
	"outfitcast/internal/dataset"
	"outfitcast/internal/nn"
	"outfitcast/internal/pipeline"
	"outfitcast/internal/store/sqlitedoc"
)

var trainShuffle int64

func init() {
	trainCmd.Flags().Int64Var(&trainShuffle, "shuffle", 0, "shuffle samples with this seed before export (0 keeps corpus order)")
	rootCmd.AddCommand(trainCmd)
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train through the external trainer and register the checkpoint",
	Long: `Load the dataset (cache first), stream it as JSONL to the trainer
binary with the extents and hyperparameters as flags, then verify and
register the checkpoint it writes under model.name in the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("train", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Trainer.BinaryPath == "" {
				return fmt.Errorf("%w: trainer.binaryPath is empty", errConfig)
			}
			cat, err := catalog.Load(cfg.TypesMappingPath(), cfg.TagsMappingPath())
			if err != nil {
				return err
			}
			ds, _, err := pipeline.LoadDataset(cmd.Context(), dataset.New(cfg.CacheDir()), corpus.Dir{Root: cfg.Paths.DataDir})
			if err != nil {
				return err
			}
			if ds.Len() == 0 {
				return errors.New("corpus is empty")
			}
			if trainShuffle != 0 {
				ds.Permute(rand.New(rand.NewSource(trainShuffle)))
			}

			db, err := sqlitedoc.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			opts := nn.TrainOptionsFromConfig(cfg, cat.Types.Len(), cat.Tags.Len())
			_, version, err := nn.TrainToStore(cmd.Context(), db, ds, cfg.Trainer.BinaryPath, cfg.Trainer.OutPath, cfg.Model.Name, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s v%d (%s, %d weather features)\n", cfg.Model.Name, version, ds.Extents, ds.Features)
			return nil
		})
	},
}
