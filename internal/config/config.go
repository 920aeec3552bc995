package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TIMETABLE_WASM_MEMORY_PAGES.
const EnvPrefix = "TIMETABLE"

// Config is the configuration of the timetable bridge.
type Config struct {
	// Guest is a .wasm file or a directory holding a manifest.yaml.
	Guest    string     `mapstructure:"guest"`
	LogLevel string     `mapstructure:"log_level"`
	Format   string     `mapstructure:"format"`
	Wasm     WasmConfig `mapstructure:"wasm"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Keep DWARF info so guest traps carry source positions.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory, empty for in-memory only.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
}

// LoadConfig reads defaults, then the optional file at configPath, then
// TIMETABLE_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("guest", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("format", "yaml")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config '%s': %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}
	switch c.Format {
	case "yaml", "json":
	default:
		return fmt.Errorf("invalid format %q (want yaml or json)", c.Format)
	}
	if c.Wasm.MaxInstances < 0 {
		return fmt.Errorf("invalid wasm.max_instances %d", c.Wasm.MaxInstances)
	}
	return nil
}
