package internal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "NOVASTORE"

type Config struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir  string `mapstructure:"workdir"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	BufferPool struct {
		Capacity int    `mapstructure:"capacity"`
		Replacer string `mapstructure:"replacer"`
	} `mapstructure:"bufferpool"`

	Index struct {
		Order       int    `mapstructure:"order"`
		DefaultKind string `mapstructure:"default_kind"`
		MaxOpen     int64  `mapstructure:"max_open"`
	} `mapstructure:"index"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novastore")
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.page_size", 4096)
	v.SetDefault("bufferpool.capacity", 128)
	v.SetDefault("bufferpool.replacer", "lru")
	v.SetDefault("index.order", 128)
	v.SetDefault("index.default_kind", "BTREE")
	v.SetDefault("index.max_open", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads a YAML file (optional when path is empty), then applies
// NOVASTORE_* environment overrides such as NOVASTORE_STORAGE_WORKDIR.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig is the configuration with no file and no environment.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
