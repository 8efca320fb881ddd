package main

import (
	"callmarket/internal/clearinghouse"
	"callmarket/internal/dividend"
	"callmarket/internal/engine"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	roundFlagName    = "round"
	dividendFlagName = "dividend"
	seedFlagName     = "seed"
)

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().String(roundFlagName, "", "Path to the round(s) to clear (JSON)")
	clearCmd.Flags().Int64(dividendFlagName, 0, "Realized dividend per share, drawn from the configured distribution when unset")
	clearCmd.Flags().Uint64(seedFlagName, 0, "Seed of the dividend draw, the configured seed when unset")
	_ = clearCmd.MarkFlagRequired(roundFlagName)
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clears one round per group and prints the results as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, flush, err := newMetrics(cmd)
		if err != nil {
			return err
		}
		defer flush()

		path, _ := cmd.Flags().GetString(roundFlagName)
		inputs, err := readRounds(path)
		if err != nil {
			return err
		}

		drawer, err := clearDrawer(cmd, cfg.Session.Dividend, cfg.Session.Seed)
		if err != nil {
			return err
		}

		params := cfg.Session.Params()
		rounds := make([]engine.Round, len(inputs))
		for i, in := range inputs {
			if in.LastPrice == 0 {
				in.LastPrice = cfg.Session.InitialPrice
			}
			rounds[i] = in.round(params, drawer.Draw())
		}

		house := clearinghouse.New(engine.New(engine.WithMetrics(m)), cfg.Workers)
		results, err := house.ClearAll(cmd.Context(), rounds)
		if err != nil {
			return err
		}

		log.Debug().Int("groups", len(results)).Msg("printing results")
		if len(results) == 1 {
			return printJSON(results[0])
		}
		return printJSON(results)
	},
}

func clearDrawer(cmd *cobra.Command, dist dividend.Distribution, seed uint64) (dividend.Drawer, error) {
	if cmd.Flags().Changed(dividendFlagName) {
		amount, _ := cmd.Flags().GetInt64(dividendFlagName)
		return dividend.Fixed(amount), nil
	}
	if cmd.Flags().Changed(seedFlagName) {
		seed, _ = cmd.Flags().GetUint64(seedFlagName)
	}
	drawer, err := dividend.NewRandomDrawer(dist, seed)
	if err != nil {
		return nil, err
	}
	return drawer, nil
}
