// Package config loads the engine's runtime configuration: a TOML file overridden by
// EDGELINK_-prefixed environment variables, adapted from the teacher's YAML/viper setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine process.
type Config struct {
	Runtime RuntimeConfig `mapstructure:"runtime"`
}

// RuntimeConfig groups the engine's own tunables, namespaced under "runtime" per
// spec §6's recognized-keys table.
type RuntimeConfig struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Flow    FlowConfig    `mapstructure:"flow"`
	Context ContextConfig `mapstructure:"context"`
	Log     LogConfig     `mapstructure:"log"`
}

// EngineConfig contains engine-process-wide settings.
type EngineConfig struct {
	Home   string `mapstructure:"home"`
	RunEnv string `mapstructure:"run_env"`
}

// FlowConfig contains per-flow scheduling settings.
type FlowConfig struct {
	NodeMsgQueueCapacity int `mapstructure:"node_msg_queue_capacity"`
}

// ContextConfig selects and configures the Context Store backends (component F).
type ContextConfig struct {
	Default string                 `mapstructure:"default"`
	Stores  map[string]StoreConfig `mapstructure:"stores"`
}

// StoreConfig names a Context Store provider ("memory", "redis", ...) and its options.
type StoreConfig struct {
	Provider string                 `mapstructure:"provider"`
	Options  map[string]interface{} `mapstructure:"options"`
}

// LogConfig contains logging settings, consumed by internal/logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults plus environment overrides.
	}

	v.SetEnvPrefix("EDGELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime.engine.home", defaultHome())
	v.SetDefault("runtime.engine.run_env", "dev")

	v.SetDefault("runtime.flow.node_msg_queue_capacity", 16)

	v.SetDefault("runtime.context.default", "memory")
	v.SetDefault("runtime.context.stores.memory.provider", "memory")

	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "console")
	v.SetDefault("runtime.log.dir", "./logs")
	v.SetDefault("runtime.log.max_size_mb", 50)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age_days", 7)
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".edgelink")
}

func defaultHome() string {
	if home := os.Getenv("EDGELINK_HOME"); home != "" {
		return home
	}
	return getConfigDir()
}

// Watch installs a hot-reload callback invoked whenever the backing TOML file changes,
// using viper's fsnotify-backed watcher.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}
