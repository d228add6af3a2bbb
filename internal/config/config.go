// Package config loads runtime configuration for r64u.
//
// Everything is sourced from the environment (R64U_* variables) with sane
// defaults, so the CLI works against a device on the local network with
// nothing more than R64U_HOST set. Command-line flags override individual
// fields after Load.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/svetzal/r64u-sub000/internal/constants"
)

// Config holds all runtime settings.
type Config struct {
	// Device endpoints
	DeviceHost  string `envconfig:"HOST"`
	FTPPort     int    `envconfig:"FTP_PORT" default:"21"`
	ControlPort int    `envconfig:"CONTROL_PORT" default:"80"`

	// FTP credentials. The device ships with anonymous access enabled;
	// a password prompt kicks in only when the user names a non-anonymous
	// account without a password.
	FTPUser     string `envconfig:"FTP_USER" default:"anonymous"`
	FTPPassword string `envconfig:"FTP_PASSWORD"`

	// Queue behavior
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"30s"`
	AutoMerge        bool          `envconfig:"AUTO_MERGE"`
	IncludeHidden    bool          `envconfig:"INCLUDE_HIDDEN"`

	// Event bus subscriber buffer. 0 means the built-in default.
	EventBufferSize int `envconfig:"EVENT_BUFFER"`
}

// Load reads configuration from R64U_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("r64u", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that envconfig defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.FTPPort <= 0 || c.FTPPort > 65535 {
		return fmt.Errorf("invalid FTP port %d", c.FTPPort)
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		return fmt.Errorf("invalid control port %d", c.ControlPort)
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = constants.DefaultOperationTimeout
	}
	return nil
}

// FTPAddr returns the host:port address of the device's FTP service.
func (c *Config) FTPAddr() string {
	return fmt.Sprintf("%s:%d", c.DeviceHost, c.FTPPort)
}

// ControlBaseURL returns the base URL of the device's HTTP control API.
func (c *Config) ControlBaseURL() string {
	if c.ControlPort == 80 {
		return fmt.Sprintf("http://%s", c.DeviceHost)
	}
	return fmt.Sprintf("http://%s:%d", c.DeviceHost, c.ControlPort)
}
