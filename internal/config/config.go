package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"callmarket/internal/common"
	"callmarket/internal/dividend"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// Environment overrides.
const (
	EnvLogLevel          = "CALLMARKET_LOG_LEVEL"
	EnvInterestRate      = "CALLMARKET_INTEREST_RATE"
	EnvMarginRatio       = "CALLMARKET_MARGIN_RATIO"
	EnvMarginPremium     = "CALLMARKET_MARGIN_PREMIUM"
	EnvMarginTargetRatio = "CALLMARKET_MARGIN_TARGET_RATIO"
	EnvShortLimitRatio   = "CALLMARKET_SHORT_LIMIT_RATIO"
	EnvMarginDelay       = "CALLMARKET_MARGIN_DELAY"
	EnvWorkers           = "CALLMARKET_WORKERS"
	EnvSeed              = "CALLMARKET_SEED"
)

type Logging struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// Session holds the market parameters of an experiment session.
type Session struct {
	InterestRate      decimal.Decimal  `toml:"interest_rate"`
	MarginRatio       decimal.Decimal  `toml:"margin_ratio"`
	MarginPremium     decimal.Decimal  `toml:"margin_premium"`
	MarginTargetRatio decimal.Decimal  `toml:"margin_target_ratio"`
	ShortLimitRatio   *decimal.Decimal `toml:"short_limit_ratio,omitempty"`
	MarginDelay       int              `toml:"margin_delay"`
	MaxPasses         int              `toml:"max_passes"`
	InitialPrice      int64            `toml:"initial_price"`
	Seed              uint64           `toml:"seed"`

	Dividend dividend.Distribution `toml:"dividend"`
}

type Config struct {
	Logging Logging `toml:"logging"`
	Workers uint    `toml:"workers"`
	Session Session `toml:"session"`
}

func Default() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Console: true,
		},
		Workers: 4,
		Session: Session{
			InterestRate:      decimal.RequireFromString("0.05"),
			MarginRatio:       decimal.RequireFromString("0.5"),
			MarginPremium:     decimal.RequireFromString("0.1"),
			MarginTargetRatio: decimal.RequireFromString("0.4"),
			MarginDelay:       0,
			MaxPasses:         common.DefaultMaxPasses,
			InitialPrice:      140,
			Seed:              1,
			Dividend: dividend.Distribution{Outcomes: []dividend.Outcome{
				{Amount: 0, Probability: decimal.RequireFromString("0.5")},
				{Amount: 14, Probability: decimal.RequireFromString("0.5")},
			}},
		},
	}
}

// Load reads the TOML file at path (skipped when empty) over the defaults,
// then applies the .env file at envPath and the environment.
// Priority: ENV > .env file > config file > defaults.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("unable to read config %s: %w", path, err)
		}
	}

	// The .env file is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) applyEnv() error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}

	ratios := []struct {
		key string
		dst *decimal.Decimal
	}{
		{EnvInterestRate, &cfg.Session.InterestRate},
		{EnvMarginRatio, &cfg.Session.MarginRatio},
		{EnvMarginPremium, &cfg.Session.MarginPremium},
		{EnvMarginTargetRatio, &cfg.Session.MarginTargetRatio},
	}
	for _, r := range ratios {
		if v := os.Getenv(r.key); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, r.key, err)
			}
			*r.dst = d
		}
	}

	switch v := os.Getenv(EnvShortLimitRatio); v {
	case "":
	case "none":
		cfg.Session.ShortLimitRatio = nil
	default:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvShortLimitRatio, err)
		}
		cfg.Session.ShortLimitRatio = &d
	}

	if v := os.Getenv(EnvMarginDelay); v != "" {
		delay, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvMarginDelay, err)
		}
		cfg.Session.MarginDelay = delay
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		workers, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvWorkers, err)
		}
		cfg.Workers = uint(workers)
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvSeed, err)
		}
		cfg.Session.Seed = seed
	}
	return nil
}

func (cfg Config) Validate() error {
	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
	}
	if cfg.Workers == 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if cfg.Session.InitialPrice <= 0 {
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidConfig)
	}
	if err := cfg.Session.Params().Validate(); err != nil {
		return err
	}
	return cfg.Session.Dividend.Validate()
}

// Params are the clearing parameters of the session.
func (s Session) Params() common.Params {
	return common.Params{
		InterestRate:      s.InterestRate,
		MarginRatio:       s.MarginRatio,
		MarginPremium:     s.MarginPremium,
		MarginTargetRatio: s.MarginTargetRatio,
		ShortLimitRatio:   s.ShortLimitRatio,
		MarginDelay:       s.MarginDelay,
		MaxPasses:         s.MaxPasses,
	}
}

// Encode writes the config as TOML.
func (cfg Config) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
