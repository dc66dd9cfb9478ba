// Package config loads application configuration from a YAML file and
// TB_-prefixed environment variables, with sensible defaults for every key.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the sync server settings.
type ServerConfig struct {
	// Port to listen on. 0 picks a random free port.
	Port int `mapstructure:"port" yaml:"port"`

	// Password is the shared credential clients must present.
	Password string `mapstructure:"password" yaml:"password"`
}

// DBConfig holds persistence settings.
type DBConfig struct {
	// Path to the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// RetryAttempts bounds how many times a failed store operation is
	// retried before giving up.
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelay is the fixed pause between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// File receives server logs when set; empty logs to stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// SyncConfig holds client-side sync settings.
type SyncConfig struct {
	// ResyncInterval is how often the server cache is reloaded from the
	// database. 0 disables periodic resync.
	ResyncInterval time.Duration `mapstructure:"resync_interval" yaml:"resync_interval"`

	// ReconnectDelay is the fixed pause between client reconnect attempts.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// Config is the top-level application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	DB     DBConfig     `mapstructure:"db" yaml:"db"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns ~/.config/teamboard/config.yaml, falling back to
// the working directory when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "teamboard", "config.yaml")
}

// DefaultDBPath returns the default database location under the user's home
// directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "teamboard.db")
	}
	return filepath.Join(home, ".local", "share", "teamboard", "teamboard.db")
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		DB: DBConfig{
			Path:          DefaultDBPath(),
			RetryAttempts: 3,
			RetryDelay:    200 * time.Millisecond,
		},
		Sync: SyncConfig{
			ResyncInterval: 0,
			ReconnectDelay: 3 * time.Second,
		},
	}
}

// Load reads configuration from the given YAML file, layering TB_ environment
// variables over it (TB_SERVER_PORT, TB_SERVER_PASSWORD, TB_DB_PATH, ...). A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.password", "")
	v.SetDefault("db.path", DefaultDBPath())
	v.SetDefault("db.retry_attempts", 3)
	v.SetDefault("db.retry_delay", 200*time.Millisecond)
	v.SetDefault("log.file", "")
	v.SetDefault("sync.resync_interval", time.Duration(0))
	v.SetDefault("sync.reconnect_delay", 3*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return applyEnv(v), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return applyEnv(v), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv builds a config from defaults plus environment overrides when no
// file exists.
func applyEnv(v *viper.Viper) *Config {
	cfg := defaultConfig()
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.Password = v.GetString("server.password")
	cfg.DB.Path = v.GetString("db.path")
	cfg.DB.RetryAttempts = v.GetInt("db.retry_attempts")
	cfg.DB.RetryDelay = v.GetDuration("db.retry_delay")
	cfg.Log.File = v.GetString("log.file")
	cfg.Sync.ResyncInterval = v.GetDuration("sync.resync_interval")
	cfg.Sync.ReconnectDelay = v.GetDuration("sync.reconnect_delay")
	return cfg
}
