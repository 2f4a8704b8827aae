// Package main provides the outfitcast CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"outfitcast/internal/catalog"
	"outfitcast/internal/config"
	"outfitcast/internal/logging"
	"outfitcast/internal/nn"
	"outfitcast/internal/ragged"
	"outfitcast/internal/store/sqlitedoc"
	"outfitcast/internal/weather"
)

// Version is set at build time via ldflags
var Version = "dev"

var cfgPath string

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "outfitcast",
	Short: "Score outfits against the day's weather",
	Long: `outfitcast normalizes a labelled outfit corpus into dense tensors,
hands them to an external trainer and scores stored outfits against a
live hourly forecast with the trained checkpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./outfitcast.yaml", "config path")
	rootCmd.Version = Version
}

// errConfig marks errors from loading or validating configuration.
var errConfig = errors.New("config")

// loadConfig reads the config file, falling back to defaults plus the
// environment when the file does not exist.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", errConfig, cfgPath, err)
	}
	return cfg, nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errConfig), errors.Is(err, catalog.ErrInvalidMapping):
		return ExitConfigError
	case errors.Is(err, ragged.ErrMalformedOutfit), errors.Is(err, ragged.ErrExtentsExceeded),
		errors.Is(err, catalog.ErrMissingCategory), errors.Is(err, nn.ErrExtentMismatch):
		return ExitDataError
	case errors.Is(err, weather.ErrProviderRejected), errors.Is(err, weather.ErrProviderUnreachable),
		errors.Is(err, weather.ErrShortSeries):
		return ExitWeatherError
	case errors.Is(err, sqlitedoc.ErrNotFound):
		return ExitModelMissing
	}
	return ExitError
}
