// Package config loads engine settings from defaults, an optional YAML file
// and MOMENTS_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/roach88/moments/internal/engine"
)

// DefaultFile is read when Load is given no path and the file exists.
const DefaultFile = "moments.yaml"

// EnvPrefix prefixes every environment override. "__" separates levels:
// MOMENTS_ENGINE__MAX_ATTEMPTS sets engine.max_attempts.
const EnvPrefix = "MOMENTS_"

type Config struct {
	Engine    EngineConfig    `koanf:"engine"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

type EngineConfig struct {
	MaxAttempts              int           `koanf:"max_attempts"`
	MaxVisibleCards          int           `koanf:"max_visible_cards"`
	MaxConcurrentGenerations int           `koanf:"max_concurrent_generations"`
	GlobalGenerations        int           `koanf:"global_generations"`
	GenerationTimeout        time.Duration `koanf:"generation_timeout"`
}

type CatalogConfig struct {
	Path string `koanf:"path"` // .yaml, .yml or .cue
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

var defaults = map[string]any{
	"engine.max_attempts":               engine.DefaultMaxAttempts,
	"engine.max_visible_cards":          engine.DefaultMaxVisibleCards,
	"engine.max_concurrent_generations": engine.DefaultMaxConcurrentGenerations,
	"engine.global_generations":         engine.DefaultGlobalGenerations,
	"engine.generation_timeout":         "2m",
	"catalog.path":                      "moments.catalog.yaml",
	"storage.driver":                    "sqlite3",
	"storage.path":                      "moments.db",
	"telemetry.enabled":                 false,
	"telemetry.service_name":            "moments",
	"server.addr":                       ":8080",
	"log.level":                         "info",
}

// Load builds the configuration. An empty path reads DefaultFile if it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"engine.max_attempts":               c.Engine.MaxAttempts,
		"engine.max_visible_cards":          c.Engine.MaxVisibleCards,
		"engine.max_concurrent_generations": c.Engine.MaxConcurrentGenerations,
		"engine.global_generations":         c.Engine.GlobalGenerations,
	}
	for _, key := range []string{
		"engine.max_attempts",
		"engine.max_visible_cards",
		"engine.max_concurrent_generations",
		"engine.global_generations",
	} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, positive[key]))
		}
	}
	if c.Engine.GenerationTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.generation_timeout must not be negative, got %s", c.Engine.GenerationTimeout))
	}
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite3 or sqlite, got %q", c.Storage.Driver))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Options converts engine settings to engine options.
func (c EngineConfig) Options() []engine.Option {
	return []engine.Option{
		engine.WithMaxAttempts(c.MaxAttempts),
		engine.WithMaxVisibleCards(c.MaxVisibleCards),
		engine.WithMaxConcurrentGenerations(c.MaxConcurrentGenerations),
		engine.WithGlobalGenerationLimit(c.GlobalGenerations),
	}
}
