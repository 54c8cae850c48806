package system

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/tailored-agentic-units/specialists/bus"
	"github.com/tailored-agentic-units/specialists/consult"
	"github.com/tailored-agentic-units/specialists/evolution"
	"github.com/tailored-agentic-units/specialists/genesis"
	"github.com/tailored-agentic-units/specialists/memory"
	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/registry"
	"github.com/tailored-agentic-units/specialists/routing"
	"github.com/tailored-agentic-units/specialists/session"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: SPECIALISTS_CONSULT__MAX_DEPTH sets consult.max_depth.
const EnvPrefix = "SPECIALISTS_"

// LogConfig selects the zap logger built by NewLogger.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error.
	Format string `json:"format,omitempty"` // json or console.
}

// SeedConfig controls first-boot population.
type SeedConfig struct {
	ProceduralCount int    `json:"procedural_count,omitempty"`
	RandomSeed      uint64 `json:"random_seed,omitempty"`
}

// Config holds initialization parameters for every subsystem. Each section
// delegates to that subsystem's own Config.
type Config struct {
	Node             string           `json:"node,omitempty"`
	MetricsNamespace string           `json:"metrics_namespace,omitempty"`
	Storage          memory.Config    `json:"storage"`
	Registry         registry.Config  `json:"registry"`
	Routing          routing.Config   `json:"routing"`
	Genesis          genesis.Config   `json:"genesis"`
	Evolution        evolution.Config `json:"evolution"`
	Consult          consult.Config   `json:"consult"`
	Session          session.Config   `json:"session"`
	Bus              bus.Config       `json:"bus"`
	Provider         provider.Config  `json:"provider"`
	Log              LogConfig        `json:"log"`
	Seed             SeedConfig       `json:"seed"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		MetricsNamespace: "specialists",
		Storage:          memory.DefaultConfig(),
		Registry:         registry.DefaultConfig(),
		Routing:          routing.DefaultConfig(),
		Genesis:          genesis.DefaultConfig(),
		Evolution:        evolution.DefaultConfig(),
		Consult:          consult.DefaultConfig(),
		Session:          session.DefaultConfig(),
		Bus:              bus.DefaultConfig(),
		Provider:         provider.DefaultConfig(),
		Log:              LogConfig{Level: "info", Format: "json"},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Storage.Merge(&source.Storage)
	c.Registry.Merge(&source.Registry)
	c.Routing.Merge(&source.Routing)
	c.Genesis.Merge(&source.Genesis)
	c.Evolution.Merge(&source.Evolution)
	c.Consult.Merge(&source.Consult)
	c.Session.Merge(&source.Session)
	c.Bus.Merge(&source.Bus)
	c.Provider.Merge(&source.Provider)

	if source.Node != "" {
		c.Node = source.Node
	}
	if source.MetricsNamespace != "" {
		c.MetricsNamespace = source.MetricsNamespace
	}
	if source.Log.Level != "" {
		c.Log.Level = source.Log.Level
	}
	if source.Log.Format != "" {
		c.Log.Format = source.Log.Format
	}
	if source.Seed.ProceduralCount > 0 {
		c.Seed.ProceduralCount = source.Seed.ProceduralCount
	}
	if source.Seed.RandomSeed != 0 {
		c.Seed.RandomSeed = source.Seed.RandomSeed
	}
}

// LoadConfig layers a YAML file and SPECIALISTS_ environment variables
// over the defaults. An empty path skips the file. Durations are written
// as strings such as "10s".
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var loaded Config
	if err := k.UnmarshalWithConf("", &loaded, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Merge(&loaded)
	return &cfg, nil
}

// envKey maps SPECIALISTS_SECTION__FIELD_NAME to section.field_name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
