// Package config defines the on-disk configuration of the drivers.
package config

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/navbot/navbot/components/base/create"
	"github.com/navbot/navbot/components/lidar/rplidar"
	"github.com/navbot/navbot/logging"
)

// Config is the top level configuration. Either device section may be left out.
type Config struct {
	LogLevel string          `json:"log_level,omitempty"`
	Lidar    *rplidar.Config `json:"lidar,omitempty"`
	Base     *create.Config  `json:"base,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.Lidar == nil && c.Base == nil {
		return errors.New("config must have a lidar or base section")
	}
	var err error
	if _, levelErr := logging.LevelFromString(c.LogLevel); levelErr != nil {
		err = multierr.Append(err, levelErr)
	}
	if c.Lidar != nil {
		err = multierr.Append(err, c.Lidar.Validate("lidar"))
	}
	if c.Base != nil {
		err = multierr.Append(err, c.Base.Validate("base"))
	}
	return err
}

func (c *Config) applyDefaults() {
	if c.Lidar != nil {
		c.Lidar.ApplyDefaults()
	}
	if c.Base != nil {
		c.Base.ApplyDefaults()
	}
}

// Level is the configured log level, info if unset.
func (c *Config) Level() logging.Level {
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}
