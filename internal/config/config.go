// Package config loads server settings from flags, environment variables,
// a .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WEBVENTORY_ADDR.
const EnvPrefix = "WEBVENTORY"

// Config is the full server configuration.
type Config struct {
	DB      string        `mapstructure:"db"`
	Addr    string        `mapstructure:"addr"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Charts  ChartsConfig  `mapstructure:"charts"`
	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	// File, when set, receives a copy of every log line.
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ChartsConfig struct {
	Dir            string        `mapstructure:"dir"`
	InMemory       bool          `mapstructure:"in_memory"`
	TTL            time.Duration `mapstructure:"ttl"`
	Width          int           `mapstructure:"width"`
	Height         int           `mapstructure:"height"`
	KeepZeroValues bool          `mapstructure:"keep_zero_values"`
}

type APIConfig struct {
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// defaults maps every key to its default value.
var defaults = map[string]any{
	"db":                      "webventory.db",
	"addr":                    ":8080",
	"log.file":                "",
	"log.level":               "info",
	"session.ttl":             24 * time.Hour,
	"charts.dir":              "charts",
	"charts.in_memory":        false,
	"charts.ttl":              time.Hour,
	"charts.width":            640,
	"charts.height":           480,
	"charts.keep_zero_values": false,
	"api.cors_origins":        []string{},
	"metrics.enabled":         true,
}

// New returns a viper instance with defaults set and environment variables
// bound.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads environment variables from path if it exists. Variables
// already set in the environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the optional config file into v and decodes and validates the
// result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must not be empty"))
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("addr %q: %w", c.Addr, err))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if !c.Charts.InMemory && c.Charts.Dir == "" {
		errs = append(errs, errors.New("charts.dir must be set unless charts.in_memory is true"))
	}
	if c.Charts.TTL < 0 {
		errs = append(errs, errors.New("charts.ttl must not be negative"))
	}
	if c.Charts.Width < 100 || c.Charts.Height < 100 {
		errs = append(errs, fmt.Errorf("charts size %dx%d is below 100x100", c.Charts.Width, c.Charts.Height))
	}
	return errors.Join(errs...)
}

// ParseLevel parses a slog level name such as "debug" or "WARN".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// WatchLevel re-reads log.level whenever the config file changes and applies
// it to level. It does nothing when no config file was loaded.
func WatchLevel(v *viper.Viper, level *slog.LevelVar) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l, err := ParseLevel(v.GetString("log.level"))
		if err != nil {
			slog.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		if l != level.Level() {
			level.Set(l)
			slog.Info("log level changed", "level", l.String())
		}
	})
	v.WatchConfig()
}
