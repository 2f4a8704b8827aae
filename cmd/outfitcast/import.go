package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"outfitcast/internal/catalog"
	"outfitcast/internal/cmdlog"
	"outfitcast/internal/model"
	"outfitcast/internal/store/sqlitedoc"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <user> <file>",
	Short: "Store a user's named outfits",
	Long: `Read a JSON list of outfits, each a list of {"type": name, "tags": [names]}
items, map the names to ids with the category mappings and store them for the
user. Unknown names abort the import before anything is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("import", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.TypesMappingPath(), cfg.TagsMappingPath())
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var named [][]catalog.Item
			if err := json.Unmarshal(b, &named); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			outfits := make([]model.Outfit, 0, len(named))
			for i, items := range named {
				types, tags, err := cat.Encode(items)
				if err != nil {
					return fmt.Errorf("outfit %d: %w", i, err)
				}
				outfits = append(outfits, model.Outfit{TypeIDs: types, TagIDLists: tags})
			}

			db, err := sqlitedoc.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			for _, o := range outfits {
				id, err := db.PutOutfit(cmd.Context(), args[0], o)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored outfit %d (%d items)\n", id, o.Items())
			}
			return nil
		})
	},
}
