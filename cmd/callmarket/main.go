package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callmarket/internal/config"
	"callmarket/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	configFlagName     = "config"
	envFlagName        = "env"
	logLevelFlagName   = "log-level"
	metricsOutFlagName = "metrics-out"
)

var rootCmd = &cobra.Command{
	Use:           "callmarket",
	Short:         "Clears call-market rounds of experimental asset markets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String(configFlagName, "", "Path to the session config (TOML)")
	rootCmd.PersistentFlags().String(envFlagName, "", "Path to a .env file with CALLMARKET_* overrides")
	rootCmd.PersistentFlags().String(logLevelFlagName, "", "Overrides the configured log level")
	rootCmd.PersistentFlags().String(metricsOutFlagName, "", "Writes clearing metrics in Prometheus text format to this file")
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("callmarket failed")
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config named by the persistent flags and sets up the
// global logger from it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString(configFlagName)
	envPath, _ := cmd.Flags().GetString(envFlagName)

	cfg, err := config.Load(path, envPath)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString(logLevelFlagName); level != "" {
		cfg.Logging.Level = level
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(cfg config.Logging) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

// newMetrics returns the clearing metrics and a function flushing them to
// the --metrics-out file, if any.
func newMetrics(cmd *cobra.Command) (*metrics.Metrics, func(), error) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}

	out, _ := cmd.Flags().GetString(metricsOutFlagName)
	flush := func() {
		if out == "" {
			return
		}
		if err := prometheus.WriteToTextfile(out, reg); err != nil {
			log.Warn().Err(err).Str("path", out).Msg("unable to write metrics")
		}
	}
	return m, flush, nil
}
