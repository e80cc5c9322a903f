package create

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/navbot/navbot/serial"
	"github.com/navbot/navbot/utils"
)

// baudRates are the rates the Open Interface can be switched to.
var baudRates = []int{300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 57600, 115200}

// Defaults for a Create 2 / Roomba 600 series base.
const (
	defaultBaudRate           = 115200
	defaultSyncPeriod         = 40 * time.Millisecond
	defaultModeProbeTimeout   = 50 * time.Millisecond
	defaultModeSettle         = 50 * time.Millisecond
	defaultResetSettle        = 500 * time.Millisecond
	defaultInitRetries        = 5
	defaultInitBackoff        = time.Second
	defaultWheelDiameterMM    = 72
	defaultCountsPerRotation  = 508.8
	defaultDriveTrainMM       = 235
	defaultMotionPoll         = 10 * time.Millisecond
	defaultRotateTimeConstant = 116.5
	defaultRotateArcScale     = 0.92
	defaultDecelRate          = 0.008
	defaultDecelOffsetMM      = 10
	defaultStopEventBuffer    = 8
)

// Config describes how to reach the base, its geometry and motion calibration.
type Config struct {
	SerialPath string `json:"serial_path"`
	BaudRate   int    `json:"baud_rate,omitempty"`
	// Mode is the mode the base is brought into on start and after a reset: passive, safe or full.
	Mode string `json:"mode,omitempty"`

	SyncPeriod       time.Duration `json:"sync_period,omitempty"`
	CommandTimeout   time.Duration `json:"command_timeout,omitempty"`
	ModeProbeTimeout time.Duration `json:"mode_probe_timeout,omitempty"`
	ModeSettle       time.Duration `json:"mode_settle,omitempty"`
	ResetSettle      time.Duration `json:"reset_settle,omitempty"`
	InitRetries      int           `json:"init_retries,omitempty"`
	InitBackoff      time.Duration `json:"init_backoff,omitempty"`

	WheelDiameterMM      float64 `json:"wheel_diameter_mm,omitempty"`
	CountsPerRotation    float64 `json:"counts_per_rotation,omitempty"`
	DriveTrainDiameterMM float64 `json:"drive_train_diameter_mm,omitempty"`

	MotionPoll time.Duration `json:"motion_poll,omitempty"`
	// Empirical calibration, tune per robot.
	RotateTimeConstantMM float64 `json:"rotate_time_constant_mm,omitempty"`
	RotateArcScale       float64 `json:"rotate_arc_scale,omitempty"`
	DecelRate            float64 `json:"decel_rate,omitempty"`
	DecelOffsetMM        float64 `json:"decel_offset_mm,omitempty"`

	StopEventBuffer int `json:"stop_event_buffer,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SerialPath == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "serial_path")
	}
	if cfg.BaudRate != 0 {
		if err := utils.ValidateBaudRate(baudRates, cfg.BaudRate); err != nil {
			return goutils.NewConfigValidationError(path, err)
		}
	}
	if cfg.Mode != "" {
		mode, err := ParseMode(cfg.Mode)
		if err != nil {
			return goutils.NewConfigValidationError(path, err)
		}
		if mode == ModeOff {
			return goutils.NewConfigValidationError(path, errors.New("mode must be passive, safe or full"))
		}
	}
	if cfg.InitRetries < 0 {
		return goutils.NewConfigValidationError(path, errors.New("init_retries must not be negative"))
	}
	for name, v := range map[string]float64{
		"wheel_diameter_mm":       cfg.WheelDiameterMM,
		"counts_per_rotation":     cfg.CountsPerRotation,
		"drive_train_diameter_mm": cfg.DriveTrainDiameterMM,
	} {
		if v < 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s must not be negative", name))
		}
	}
	return nil
}

// ApplyDefaults fills in unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFull.String()
	}
	setDuration(&cfg.SyncPeriod, defaultSyncPeriod)
	setDuration(&cfg.CommandTimeout, serial.DefaultTimeout)
	setDuration(&cfg.ModeProbeTimeout, defaultModeProbeTimeout)
	setDuration(&cfg.ModeSettle, defaultModeSettle)
	setDuration(&cfg.ResetSettle, defaultResetSettle)
	setDuration(&cfg.InitBackoff, defaultInitBackoff)
	setDuration(&cfg.MotionPoll, defaultMotionPoll)
	if cfg.InitRetries == 0 {
		cfg.InitRetries = defaultInitRetries
	}
	setFloat(&cfg.WheelDiameterMM, defaultWheelDiameterMM)
	setFloat(&cfg.CountsPerRotation, defaultCountsPerRotation)
	setFloat(&cfg.DriveTrainDiameterMM, defaultDriveTrainMM)
	setFloat(&cfg.RotateTimeConstantMM, defaultRotateTimeConstant)
	setFloat(&cfg.RotateArcScale, defaultRotateArcScale)
	setFloat(&cfg.DecelRate, defaultDecelRate)
	setFloat(&cfg.DecelOffsetMM, defaultDecelOffsetMM)
	if cfg.StopEventBuffer <= 0 {
		cfg.StopEventBuffer = defaultStopEventBuffer
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func setFloat(f *float64, def float64) {
	if *f == 0 {
		*f = def
	}
}

func (cfg *Config) serialOptions() serial.Options {
	opts := serial.Options8N1(cfg.BaudRate)
	opts.ReadTimeout = cfg.CommandTimeout
	opts.WriteTimeout = cfg.CommandTimeout
	return opts
}
