package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// StoreConfig holds the persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig controls how commands render their responses.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds all runtime configuration for an omsid invocation.
// Values are populated from omsid.yaml, OMSID_* env vars, and CLI flags.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Output OutputConfig `mapstructure:"output"`
	Log    LogConfig    `mapstructure:"log"`
}

// Init wires viper's sources: the explicit config file when given,
// otherwise omsid.yaml in the working directory or $HOME, overlaid by
// OMSID_* environment variables (OMSID_STORE_PATH and friends).
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("omsid")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("OMSID")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// Load reads configuration from viper, applying built-in defaults for
// any values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("store.path", "omsid.db")
	viper.SetDefault("output.format", "text")
	viper.SetDefault("log.level", "info")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
