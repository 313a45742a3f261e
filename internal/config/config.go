// Package config resolves run settings from defaults, an optional TOML or
// YAML file, a .env file, CONTIGKIT_* environment variables and command-line
// flags, in increasing precedence.
package config

import (
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Doomsbay/ContigKit/internal/errors"
	"github.com/Doomsbay/ContigKit/internal/logger"
	"github.com/Doomsbay/ContigKit/internal/tsv"
)

// EnvPrefix prefixes every environment variable, e.g. CONTIGKIT_LOG_LEVEL.
const EnvPrefix = "CONTIGKIT"

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "contigkit.toml"

// Config holds the resolved settings of a run.
type Config struct {
	// Rules is a rule table path; empty selects the built-in table.
	Rules    string    `mapstructure:"rules"`
	Overlaps []string  `mapstructure:"overlaps"`
	Progress bool      `mapstructure:"progress"`
	Workers  int       `mapstructure:"workers"`
	Log      LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults configures default values for all options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rules", "")
	v.SetDefault("overlaps", []string{"megaplasmid/chromid"})
	v.SetDefault("progress", true)
	v.SetDefault("workers", 0) // 0 means GOMAXPROCS
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// BindFlags binds flags to config keys. Only flags the user set override
// lower layers.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}

// LoadDotenv loads envFile into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		logger.Debug("no .env file, using process environment", zap.String("path", envFile))
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return errors.NewIOError("load env", envFile, err)
	}
	return nil
}

// Load reads configFile (or DefaultFile when present) into v and returns the
// resolved Config. The .env file must already be loaded.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			configFile = DefaultFile
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewIOError("read config", configFile, err)
			}
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
		logger.Debug("loaded config file", zap.String("path", configFile))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no run can use.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.Newf("workers must be >= 0, got %d", c.Workers)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return errors.WithHint(errors.Wrap(err, "log.level"), "use debug, info, warn or error")
	}
	return nil
}

// TSVOptions returns reader options sized by Workers.
func (c *Config) TSVOptions() tsv.Options {
	opts := tsv.DefaultOptions()
	opts.Workers = c.Workers
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return opts
}
