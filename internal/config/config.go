package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Backend BackendConfig `mapstructure:"backend" validate:"required"`
	Poll    PollConfig    `mapstructure:"poll"    validate:"required"`
	Assets  AssetsConfig  `mapstructure:"assets"  validate:"required"`
	Log     LogConfig     `mapstructure:"log"     validate:"required"`
}

// BackendConfig contains the settings of the remote processing server.
type BackendConfig struct {
	// BaseURL is the root of the backend's REST API.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// RequestTimeout bounds each individual HTTP request the client makes.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
}

// PollConfig contains the controller's timing settings.
type PollConfig struct {
	// Interval is the cadence of status polls while a task runs.
	Interval time.Duration `mapstructure:"interval" validate:"required"`

	// HealthInterval is the cadence of the background health heartbeat.
	HealthInterval time.Duration `mapstructure:"health_interval" validate:"required"`
}

// AssetsConfig contains local asset store settings.
type AssetsConfig struct {
	// Dir is the directory images and parameters persist under.
	Dir string `mapstructure:"dir" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}
