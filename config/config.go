// Package config loads DialogMesh host configuration from a YAML or JSON file
// and DIALOGMESH_ prefixed environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/recognizer"
)

// EnvPrefix prefixes every environment override, e.g.
// DIALOGMESH_ENGINE_MAX_STACK_DEPTH=8.
const EnvPrefix = "DIALOGMESH"

// Config is the root configuration document.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	AMQP       AMQPConfig       `mapstructure:"amqp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	SSM        SSMConfig        `mapstructure:"ssm"`
	// Settings backs the settings memory scope. Keys are lower-cased by the loader.
	Settings map[string]any `mapstructure:"settings"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	RootDialog        string        `mapstructure:"root_dialog"`
	MaxStackDepth     int           `mapstructure:"max_stack_depth"`
	MaxActionsPerTurn int           `mapstructure:"max_actions_per_turn"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
}

// RecognizerConfig holds the orchestrator thresholds.
type RecognizerConfig struct {
	UnknownIntentFilterScore     float64 `mapstructure:"unknown_intent_filter_score"`
	DisambiguationScoreThreshold float64 `mapstructure:"disambiguation_score_threshold"`
	DetectAmbiguousIntents       bool    `mapstructure:"detect_ambiguous_intents"`
}

// StorageConfig selects and parameterizes the state backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite or dynamodb
	Path   string `mapstructure:"path"`   // sqlite database file
	Table  string `mapstructure:"table"`  // dynamodb table
}

// AMQPConfig configures the outbound activity sink. An empty URL disables it.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// SSMConfig names an AWS Systems Manager parameter path whose parameters
// are merged into Settings by hosts that call LoadSSMSettings.
type SSMConfig struct {
	SettingsPath string `mapstructure:"settings_path"`
}

// LoggingConfig configures the host logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`  // json or text
	Backend string `mapstructure:"backend"` // slog or zerolog
}

// Load reads configuration from path, or from defaults and the environment
// alone when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.root_dialog", "")
	v.SetDefault("engine.max_stack_depth", engine.DefaultConfig.MaxStackDepth)
	v.SetDefault("engine.max_actions_per_turn", engine.DefaultConfig.MaxActionsPerTurn)
	v.SetDefault("engine.turn_timeout", "0s")

	v.SetDefault("recognizer.unknown_intent_filter_score", recognizer.DefaultUnknownIntentFilterScore)
	v.SetDefault("recognizer.disambiguation_score_threshold", recognizer.DefaultDisambiguationScoreThreshold)
	v.SetDefault("recognizer.detect_ambiguous_intents", false)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "dialogmesh.db")
	v.SetDefault("storage.table", "")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "dialogmesh.activities")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.backend", "slog")

	v.SetDefault("ssm.settings_path", "")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Engine.MaxStackDepth < 1 {
		return fmt.Errorf("config: engine.max_stack_depth must be positive, got %d", c.Engine.MaxStackDepth)
	}
	if c.Engine.MaxActionsPerTurn < 0 {
		return fmt.Errorf("config: engine.max_actions_per_turn must not be negative, got %d", c.Engine.MaxActionsPerTurn)
	}
	for name, score := range map[string]float64{
		"unknown_intent_filter_score":    c.Recognizer.UnknownIntentFilterScore,
		"disambiguation_score_threshold": c.Recognizer.DisambiguationScoreThreshold,
	} {
		if score < 0 || score > 1 {
			return fmt.Errorf("config: recognizer.%s must be within [0,1], got %v", name, score)
		}
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "dynamodb":
		if c.Storage.Table == "" {
			return fmt.Errorf("config: storage.table is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Logging.Backend {
	case "slog", "zerolog":
	default:
		return fmt.Errorf("config: unknown logging.backend %q", c.Logging.Backend)
	}
	return nil
}

// EngineOptions applies the engine section and settings to engine options.
func (c *Config) EngineOptions() func(o *engine.Options) {
	return func(o *engine.Options) {
		if c.Engine.RootDialog != "" {
			o.RootDialog = c.Engine.RootDialog
		}
		o.Config = engine.Config{
			MaxStackDepth:     c.Engine.MaxStackDepth,
			MaxActionsPerTurn: c.Engine.MaxActionsPerTurn,
			TurnTimeout:       c.Engine.TurnTimeout,
		}
		o.Settings = core.Settings(c.Settings)
	}
}

// RecognizerOptions applies the recognizer thresholds.
func (c *Config) RecognizerOptions() func(o *recognizer.Options) {
	return func(o *recognizer.Options) {
		o.UnknownIntentFilterScore = c.Recognizer.UnknownIntentFilterScore
		o.DisambiguationScoreThreshold = c.Recognizer.DisambiguationScoreThreshold
		o.DetectAmbiguousIntents = c.Recognizer.DetectAmbiguousIntents
	}
}

// NewLogger builds the configured logger writing to w (stdout when nil).
func (c *Config) NewLogger(w io.Writer) logging.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := logging.ParseLevel(c.Logging.Level)
	if c.Logging.Backend == "zerolog" {
		return logging.NewZerologLogger(w, level)
	}
	return logging.NewLogger(&logging.LoggerConfig{Level: level, Format: c.Logging.Format, Output: w})
}
