package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"outfitcast/internal/cmdlog"
	"outfitcast/internal/nn"
	"outfitcast/internal/pipeline"
	"outfitcast/internal/store/sqlitedoc"
	"outfitcast/internal/weather"
)

func init() {
	rootCmd.AddCommand(predictCmd)
}

var predictCmd = &cobra.Command{
	Use:   "predict <user> <location>",
	Short: "Score a user's stored outfits against today's forecast",
	Long: `Load the latest checkpoint for model.name, pad the user's outfits to the
extents it was trained on and score them against today's hourly forecast
for the location. A stored outfit larger than the trained extents fails the
request with a data error; no prediction is logged for it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("predict", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := sqlitedoc.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			clf, err := nn.LoadFromStore(ctx, db, cfg.Model.Name)
			if err != nil {
				return err
			}
			thr, err := db.LoadThreshold(ctx, cfg.Model.Name)
			if err != nil && !errors.Is(err, sqlitedoc.ErrNotFound) {
				return err
			}
			client, err := weather.NewClient(cfg.Weather)
			if err != nil {
				return err
			}
			p := &pipeline.Predictor{
				Store:     db,
				Provider:  client,
				Model:     clf,
				Extents:   clf.Shape.Extents,
				Threshold: thr,
			}
			scores, err := p.Predict(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			for _, s := range scores {
				verdict := "skip"
				if s.Wear {
					verdict = "wear"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "outfit %d\t%.3f\t%s\n", s.OutfitID, s.Probability, verdict)
			}
			return nil
		})
	},
}
