// Package config loads lexideck settings from defaults, an optional YAML
// file, LEXIDECK_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/srs"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nesting levels: LEXIDECK_STUDY__NEW_PER_DAY sets
// study.new-per-day.
const EnvPrefix = "LEXIDECK_"

// Interleave strategies accepted in study.strategy.
const (
	StrategyTargetRatio = "target-ratio"
	StrategyRoundRobin  = "round-robin"
)

// Config is the complete application configuration.
type Config struct {
	DB           string        `koanf:"db" validate:"required"`
	Listen       string        `koanf:"listen" validate:"required"`
	ReposDir     string        `koanf:"repos-dir" validate:"required"`
	TickInterval time.Duration `koanf:"tick-interval" validate:"gt=0"`
	LogLevel     string        `koanf:"log-level" validate:"oneof=debug info warn error"`
	SRS          SRS           `koanf:"srs"`
	Study        Study         `koanf:"study"`
}

// SRS holds the scheduling algorithm tunables.
type SRS struct {
	LearningSteps      []time.Duration `koanf:"learning-steps" validate:"min=1,dive,gt=0"`
	EaseFloor          float64         `koanf:"ease-floor" validate:"gt=1"`
	MaxIntervalDays    int             `koanf:"max-interval-days" validate:"gte=1"`
	GraduatingInterval int             `koanf:"graduating-interval" validate:"gte=1"`
	EasyInterval       int             `koanf:"easy-interval" validate:"gte=1"`
	HardMultiplier     float64         `koanf:"hard-multiplier" validate:"gte=1"`
	EasyBonus          float64         `koanf:"easy-bonus" validate:"gte=1"`
	LeechThreshold     int             `koanf:"leech-threshold" validate:"gte=1"`
}

// Study holds the queue settings used when a session is built.
type Study struct {
	NewPerDay int                `koanf:"new-per-day" validate:"gt=0"`
	Ratio     map[string]float64 `koanf:"ratio" validate:"required,dive,keys,oneof=vocabulary grammar verse,endkeys,gte=0,lte=1"`
	Strategy  string             `koanf:"strategy" validate:"oneof=target-ratio round-robin"`
}

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	p := srs.DefaultParams()
	return map[string]any{
		"db":                      "lexideck.db",
		"listen":                  ":8080",
		"repos-dir":               "repos",
		"tick-interval":           time.Second,
		"log-level":               "info",
		"srs.learning-steps":      p.LearningSteps,
		"srs.ease-floor":          p.EaseFloor,
		"srs.max-interval-days":   p.MaxIntervalDays,
		"srs.graduating-interval": p.GraduatingInterval,
		"srs.easy-interval":       p.EasyInterval,
		"srs.hard-multiplier":     p.HardMultiplier,
		"srs.easy-bonus":          p.EasyBonus,
		"srs.leech-threshold":     p.LeechThreshold,
		"study.new-per-day":       20,
		"study.ratio.vocabulary":  0.6,
		"study.ratio.grammar":     0.3,
		"study.ratio.verse":       0.1,
		"study.strategy":          StrategyTargetRatio,
	}
}

// Load builds a Config. path may be empty, in which case no file is read; a
// non-empty path that does not exist is an error. flags may be nil. Only
// flags that were set explicitly override the other sources.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps LEXIDECK_SRS__LEECH_THRESHOLD to srs.leech-threshold.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ReplaceAll(s, "_", "-")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the interleave ratios sum to 1.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Params(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var sum float64
	for _, r := range c.Study.Ratio {
		sum += r
	}
	if sum < 0.95 || sum > 1.05 {
		return fmt.Errorf("invalid config: study.ratio sums to %.2f, want 1.0", sum)
	}
	return nil
}

// Params converts the srs section into validated algorithm parameters.
// Settings not exposed in the file keep their defaults.
func (c Config) Params() (srs.Params, error) {
	p := srs.DefaultParams()
	p.LearningSteps = append([]time.Duration(nil), c.SRS.LearningSteps...)
	p.EaseFloor = c.SRS.EaseFloor
	p.MaxIntervalDays = c.SRS.MaxIntervalDays
	p.GraduatingInterval = c.SRS.GraduatingInterval
	p.EasyInterval = c.SRS.EasyInterval
	p.HardMultiplier = c.SRS.HardMultiplier
	p.EasyBonus = c.SRS.EasyBonus
	p.LeechThreshold = c.SRS.LeechThreshold
	if err := p.Validate(); err != nil {
		return srs.Params{}, err
	}
	return p, nil
}

// Settings converts the study section into queue settings.
func (c Config) Settings() (queue.Settings, error) {
	s := queue.Settings{
		NewCardsPerDay:  c.Study.NewPerDay,
		InterleaveRatio: make(map[domain.CardType]float64, len(c.Study.Ratio)),
	}
	for name, r := range c.Study.Ratio {
		t, err := domain.ParseCardType(name)
		if err != nil {
			return queue.Settings{}, err
		}
		s.InterleaveRatio[t] = r
	}
	return s, nil
}

// Interleaver returns the strategy named in study.strategy.
func (c Config) Interleaver() (queue.Interleaver, error) {
	switch c.Study.Strategy {
	case StrategyTargetRatio, "":
		return queue.NewTargetRatio(nil), nil
	case StrategyRoundRobin:
		return queue.WeightedRoundRobin{}, nil
	}
	return nil, errors.New("unknown interleave strategy: " + c.Study.Strategy)
}

// SlogLevel returns log-level as a slog.Level. Unknown names map to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
