// Package config loads amsdb settings from a YAML file and AMSDB_* environment
// variables.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Storage Storage `mapstructure:"storage"`
	Logger  Logger  `mapstructure:"logger"`
	Server  Server  `mapstructure:"server"`
}

// Storage is the configuration for the page file and its cache
type Storage struct {
	DataDir     string `mapstructure:"data_dir" validate:"required"`
	Database    string `mapstructure:"database" validate:"required,max=64"`
	CacheSize   int    `mapstructure:"cache_size" validate:"min=1"`   // Pages
	CacheShards int    `mapstructure:"cache_shards" validate:"min=1"` // Rounded up to a power of two
	SyncWrites  bool   `mapstructure:"sync_writes"`
}

// Logger is the configuration for the logger
type Logger struct {
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	FileLogName string `mapstructure:"file_log_name"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge      int    `mapstructure:"max_age" validate:"min=0"`  // Days
	MaxSize     int    `mapstructure:"max_size" validate:"min=0"` // Megabytes
	Compress    bool   `mapstructure:"compress"`
}

// Server is the configuration for the HTTP front end
type Server struct {
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.database", "amsdb")
	v.SetDefault("storage.cache_size", 256)
	v.SetDefault("storage.cache_shards", 16)
	v.SetDefault("storage.sync_writes", true)

	v.SetDefault("logger.log_level", "info")
	v.SetDefault("logger.file_log_name", "")
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.compress", false)

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
}

// Load reads the configuration. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("amsdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
