package rplidar

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/navbot/navbot/serial"
	"github.com/navbot/navbot/utils"
)

// baudRates are the rates RPLidar models ship with.
var baudRates = []int{115200, 256000, 1000000}

const (
	defaultBaudRate     = 115200
	defaultResetSettle  = time.Second
	defaultDrainTimeout = time.Second
	defaultScanBuffer   = 4
)

// Config describes how to reach and run the lidar.
type Config struct {
	SerialPath   string        `json:"serial_path"`
	BaudRate     int           `json:"baud_rate,omitempty"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty"`
	ResetSettle  time.Duration `json:"reset_settle,omitempty"`
	DrainTimeout time.Duration `json:"drain_timeout,omitempty"`
	// ScanBuffer is how many completed scans may wait for the consumer before new ones are dropped.
	ScanBuffer int `json:"scan_buffer,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SerialPath == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "serial_path")
	}
	if cfg.BaudRate < 0 {
		return goutils.NewConfigValidationError(path, errors.New("baud_rate must not be negative"))
	}
	if cfg.BaudRate != 0 {
		if err := utils.ValidateBaudRate(baudRates, cfg.BaudRate); err != nil {
			return goutils.NewConfigValidationError(path, err)
		}
	}
	if cfg.ScanBuffer < 0 {
		return goutils.NewConfigValidationError(path, errors.New("scan_buffer must not be negative"))
	}
	return nil
}

// ApplyDefaults fills in unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = serial.DefaultTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = serial.DefaultTimeout
	}
	if cfg.ResetSettle <= 0 {
		cfg.ResetSettle = defaultResetSettle
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.ScanBuffer == 0 {
		cfg.ScanBuffer = defaultScanBuffer
	}
}

func (cfg *Config) serialOptions() serial.Options {
	opts := serial.Options8N1(cfg.BaudRate)
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return opts
}
