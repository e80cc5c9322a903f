// Package main is the navbot command line tool for bench testing the lidar and the base.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/navbot/navbot/components/base/create"
	"github.com/navbot/navbot/components/lidar/rplidar"
	"github.com/navbot/navbot/config"
	"github.com/navbot/navbot/logging"
	"github.com/navbot/navbot/serial"
)

const (
	flagConfig  = "config"
	flagDebug   = "debug"
	flagLogFile = "log-file"

	scanFlagCount          = "count"
	sensorsFlagInterval    = "interval"
	driveFlagSpeed         = "speed"
	driveFlagDistance      = "distance"
	driveFlagRotate        = "rotate"
	driveFlagIndefinite    = "indefinite"
	driveFlagTimeBased     = "time-based"
	driveFlagIndefiniteFor = "for"

	autoPath = "auto"
)

var logger = logging.NewLogger("navbot")

func main() {
	app := &cli.App{
		Name:            "navbot",
		Usage:           "drive an iRobot Create and read an RPLidar over serial",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "navbot.json",
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`",
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:  "ports",
				Usage: "list serial ports",
				Action: func(c *cli.Context) error {
					ports, err := serial.Search()
					if err != nil {
						return err
					}
					t := table.NewWriter()
					t.SetOutputMirror(c.App.Writer)
					t.AppendHeader(table.Row{"Path", "Device", "USB", "Serial"})
					for _, p := range ports {
						usb := ""
						if p.USB != nil {
							usb = fmt.Sprintf("%04x:%04x", p.USB.Vendor, p.USB.Product)
						}
						t.AppendRow(table.Row{p.Path, p.Kind, usb, p.SerialNumber})
					}
					t.Render()
					return nil
				},
			},
			{
				Name:  "lidar-info",
				Usage: "print the lidar's model, firmware and health",
				Action: func(c *cli.Context) error {
					return withLidar(c, lidarInfoAction)
				},
			},
			{
				Name:  "scan",
				Usage: "print lidar scans as json",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  scanFlagCount,
						Value: 1,
						Usage: "number of scans to print, 0 for no limit",
					},
				},
				Action: func(c *cli.Context) error {
					return withLidar(c, scanAction)
				},
			},
			{
				Name:  "sensors",
				Usage: "print the base's sensor state as json",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  sensorsFlagInterval,
						Value: time.Second,
						Usage: "time between prints",
					},
				},
				Action: func(c *cli.Context) error {
					return withBase(c, sensorsAction)
				},
			},
			{
				Name:  "drive",
				Usage: "run one motion on the base",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  driveFlagSpeed,
						Value: 200,
						Usage: "wheel speed in mm/s",
					},
					&cli.IntFlag{
						Name:  driveFlagDistance,
						Usage: "drive straight this many mm, negative for backwards",
					},
					&cli.IntFlag{
						Name:  driveFlagRotate,
						Usage: "turn in place this many degrees, positive for clockwise",
					},
					&cli.BoolFlag{
						Name:  driveFlagIndefinite,
						Usage: "drive straight until interrupted or bumped",
					},
					&cli.DurationFlag{
						Name:  driveFlagIndefiniteFor,
						Usage: "halt an indefinite drive after this long",
					},
					&cli.BoolFlag{
						Name:  driveFlagTimeBased,
						Usage: "measure progress by time instead of wheel encoders",
					},
				},
				Action: func(c *cli.Context) error {
					return withBase(c, driveAction)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func setupLogging(c *cli.Context) error {
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("navbot")
		logging.GlobalLogLevel.SetLevel(zapcore.DebugLevel)
	}
	if path := c.String(flagLogFile); path != "" {
		appender, err := logging.NewFileAppender(path)
		if err != nil {
			return err
		}
		logger.AddAppender(appender)
	}
	return nil
}

func loadConfig(ctx context.Context, c *cli.Context) (*config.Config, error) {
	cfg, err := config.Read(ctx, c.String(flagConfig), logger)
	if err != nil {
		return nil, err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.Level())
	}
	return cfg, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func withLidar(c *cli.Context, action func(context.Context, *cli.Context, *rplidar.Driver) error) (err error) {
	ctx, cancel := signalContext(c)
	defer cancel()
	cfg, err := loadConfig(ctx, c)
	if err != nil {
		return err
	}
	if cfg.Lidar == nil {
		return errors.New("config has no lidar section")
	}

	if cfg.Lidar.SerialPath, err = resolvePath(cfg.Lidar.SerialPath, serial.DeviceLidar); err != nil {
		return err
	}
	driver := rplidar.NewDriver(ctx, *cfg.Lidar, logger.Sublogger("lidar"))
	defer func() {
		err = multierr.Combine(err, driver.Close(context.Background()))
	}()
	if err := driver.Initialize(ctx); err != nil {
		return err
	}
	return action(ctx, c, driver)
}

func withBase(c *cli.Context, action func(context.Context, *cli.Context, *create.Base) error) (err error) {
	ctx, cancel := signalContext(c)
	defer cancel()
	cfg, err := loadConfig(ctx, c)
	if err != nil {
		return err
	}
	if cfg.Base == nil {
		return errors.New("config has no base section")
	}

	if cfg.Base.SerialPath, err = resolvePath(cfg.Base.SerialPath, serial.DeviceCreate); err != nil {
		return err
	}
	base, err := create.NewBase(ctx, *cfg.Base, logger.Sublogger("base"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, base.Close(context.Background()))
	}()
	if err := base.Initialize(ctx); err != nil {
		return err
	}
	return action(ctx, c, base)
}

// resolvePath replaces a serial path of "auto" with the only attached device of the given kind.
func resolvePath(path string, kind serial.DeviceKind) (string, error) {
	if path != autoPath {
		return path, nil
	}
	paths, err := serial.SearchKind(kind)
	if err != nil {
		return "", err
	}
	if len(paths) != 1 {
		return "", errors.Errorf("found %d %s devices, set serial_path explicitly", len(paths), kind)
	}
	logger.Infow("found device", "kind", kind, "path", paths[0])
	return paths[0], nil
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func lidarInfoAction(ctx context.Context, c *cli.Context, driver *rplidar.Driver) error {
	info, err := driver.Info(ctx)
	if err != nil {
		return err
	}
	health, err := driver.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "model:    %#x\nfirmware: %s\nhardware: %d\nserial:   %s\nhealth:   %s (code %d)\n",
		info.Model, info.FirmwareVersion(), info.HardwareRevision, info.SerialNumberString(),
		health.Status, health.ErrorCode)
	return nil
}

func scanAction(ctx context.Context, c *cli.Context, driver *rplidar.Driver) error {
	if err := driver.StartScan(ctx); err != nil {
		return err
	}
	count := c.Int(scanFlagCount)
	for printed := 0; count == 0 || printed < count; {
		select {
		case <-ctx.Done():
			return nil
		case err := <-driver.Errors():
			logger.CWarnw(ctx, "lidar error", "error", err)
		case scan, ok := <-driver.Scans():
			if !ok {
				return nil
			}
			if len(scan.Hits) == 0 {
				continue
			}
			if err := printJSON(c, scan); err != nil {
				return err
			}
			printed++
		}
	}
	logger.CInfow(ctx, "scans done", "dropped", driver.DroppedScans(), "bad_records", driver.BadRecords(),
		"rate_hz", driver.ScanRate())
	return driver.Stop(ctx)
}

func sensorsAction(ctx context.Context, c *cli.Context, base *create.Base) error {
	ticker := time.NewTicker(c.Duration(sensorsFlagInterval))
	defer ticker.Stop()
	for {
		if err := printJSON(c, base.State()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func driveAction(ctx context.Context, c *cli.Context, base *create.Base) error {
	tracking := create.EncoderBased
	if c.Bool(driveFlagTimeBased) {
		tracking = create.TimeBased
	}
	speed := c.Int(driveFlagSpeed)

	var err error
	switch {
	case c.IsSet(driveFlagDistance):
		err = base.MoveDistance(ctx, speed, c.Int(driveFlagDistance), tracking)
	case c.IsSet(driveFlagRotate):
		err = base.Rotate(ctx, speed, c.Int(driveFlagRotate), tracking)
	case c.Bool(driveFlagIndefinite):
		err = base.MoveIndefinite(ctx, speed)
	default:
		return errors.Errorf("one of --%s, --%s or --%s is required", driveFlagDistance, driveFlagRotate, driveFlagIndefinite)
	}
	if err != nil {
		return err
	}

	var timeout <-chan time.Time
	if d := c.Duration(driveFlagIndefiniteFor); d > 0 {
		timeout = time.After(d)
	}
	for {
		select {
		case <-ctx.Done():
			return base.Halt(context.Background())
		case <-timeout:
			if err := base.Halt(ctx); err != nil {
				return err
			}
			timeout = nil
		case ev := <-base.Stopped():
			logger.CInfow(ctx, "motion ended", "reason", ev.Reason, "id", ev.OperationID)
			if ev.Reason == create.StopCollision {
				return errors.New("bumped into something")
			}
			return nil
		}
	}
}
