package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Defaults applied when neither a config file nor the environment
// provides a value.
const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = time.Second
	defaultHealthInterval = 30 * time.Second
	defaultLogLevel       = "info"
	defaultBaseURL        = "http://localhost:5000"
)

// Load reads configuration from an optional config file and environment
// variables, with the environment taking precedence. The config file is
// pixelperm.yaml in the working directory, or the path named by
// PIXELPERM_CONFIG. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("backend.base_url", defaultBaseURL)
	v.SetDefault("backend.request_timeout", defaultRequestTimeout)
	v.SetDefault("poll.interval", defaultPollInterval)
	v.SetDefault("poll.health_interval", defaultHealthInterval)
	v.SetDefault("assets.dir", defaultAssetsDir())
	v.SetDefault("log.level", defaultLogLevel)

	if path := os.Getenv("PIXELPERM_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pixelperm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PIXELPERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Not finding a file on the search path is fine; everything has
		// a default or an environment override. An explicitly named file
		// that cannot be read is still an error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// defaultAssetsDir places the asset cache under the user's home
// directory, falling back to a relative directory when home is unknown.
func defaultAssetsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pixelperm"
	}
	return home + "/.pixelperm"
}
