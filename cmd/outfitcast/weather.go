package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outfitcast/internal/cmdlog"
	"outfitcast/internal/weather"
)

var matchDescriptor string

func init() {
	weatherCmd.Flags().StringVar(&matchDescriptor, "match", "", `check a descriptor such as "Cold | Humid | Rain | Breezy | Overcast" against the day`)
	rootCmd.AddCommand(weatherCmd)
}

var weatherCmd = &cobra.Command{
	Use:   "weather <location>",
	Short: "Print today's filtered 24xF forecast matrix and its weather descriptor",
	Long: `Print today's hourly forecast for the location after the field deny list,
followed by the day's dominant descriptor (temperature | humidity |
precipitation | wind | sky). With --match, also report whether the given
descriptor or a neighbour differing in one component describes the day.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("weather", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := weather.NewClient(cfg.Weather)
			if err != nil {
				return err
			}
			fc, err := client.Forecast(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			m, err := fc.Today()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 1, ' ', 0)
			fmt.Fprintf(tw, "hour\t%s\n", strings.Join(fc.Days[0].Fields, "\t"))
			for h, row := range m {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = fmt.Sprintf("%g", v)
				}
				fmt.Fprintf(tw, "%02d\t%s\n", h, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return describeDay(cmd, fc.Days[0].Fields, m)
		})
	},
}

func describeDay(cmd *cobra.Command, fields []string, m [][]float32) error {
	out := cmd.OutOrStdout()
	d, err := weather.Describe(fields, m)
	switch {
	case errors.Is(err, weather.ErrNoDominantDescriptor):
		fmt.Fprintln(out, "descriptor: none (no hourly descriptor repeats)")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "descriptor: %s\n", d)
	}
	if matchDescriptor == "" {
		return nil
	}
	want, err := weather.ParseDescriptor(matchDescriptor)
	if err != nil {
		return err
	}
	res, err := weather.Match(want, fields, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "match %s: %v (%d of %d hours, daylight %v)\n", want, res.OK(), res.Matched, weather.Hours, res.DayMatched)
	if res.OK() || d == (weather.Descriptor{}) {
		return nil
	}
	// the day's own descriptor is the only neighbour on hand
	got, ok, err := weather.MatchWithNeighbours(want, []weather.Descriptor{d}, fields, m)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(out, "close enough: %s\n", got)
	}
	return nil
}
