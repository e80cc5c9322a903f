// Package rplidar drives an RPLidar style scanning range finder over a serial link and turns its
// record stream into one Scan per rotation.
package rplidar

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/navbot/navbot/components/lidar"
	"github.com/navbot/navbot/logging"
	"github.com/navbot/navbot/serial"
	"github.com/navbot/navbot/utils"
)

var (
	// ErrDeviceUnavailable is returned when the serial device cannot be opened.
	ErrDeviceUnavailable = errors.New("lidar device unavailable")
	// ErrSetup is returned when the device does not acknowledge a scan request.
	ErrSetup = errors.New("lidar scan setup failed")
	// ErrNotInitialized is returned by operations that need an open port.
	ErrNotInitialized = errors.New("lidar not initialized")
	// ErrClosed is returned by operations on a closed driver.
	ErrClosed = errors.New("lidar closed")
	// ErrScanning is returned by queries that cannot run while a scan is in progress.
	ErrScanning = errors.New("lidar is scanning")
	// ErrBadRecord is reported on the error channel for every record that fails validation.
	ErrBadRecord = errors.New("lidar record failed validation")
)

// scanRateSamples is how many rotations ScanRate averages over.
const scanRateSamples = 10

// State is the lifecycle state of a Driver.
type State int32

// Driver states.
const (
	StateUninitialized State = iota
	StateInitialized
	StateScanning
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for scan timestamps and the reset settle wait.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithPort makes Initialize use an already open port instead of opening SerialPath.
func WithPort(p serial.Port) Option {
	return func(d *Driver) {
		d.port = p
	}
}

// Driver talks to one lidar.
type Driver struct {
	conf   Config
	logger logging.Logger
	clock  clock.Clock

	// closeCtx is cancelled by Close and aborts in-flight port operations.
	closeCtx  context.Context
	closeFunc context.CancelFunc
	closeOnce sync.Once

	mu          sync.Mutex
	port        serial.Port
	scanWorkers utils.StoppableWorkers
	state       atomic.Int32

	accMu       sync.Mutex
	accumulator []lidar.Hit

	scans chan lidar.Scan
	errs  chan error

	droppedScans atomic.Uint64
	badRecords   atomic.Uint64
	// a noisy link fails every record, so only the first few and then one a second are logged
	readWarnings rate.Sometimes

	// scanPeriod averages seconds between new-scan markers.
	scanPeriod *utils.RollingAverage
	lastScanAt time.Time
}

// NewDriver returns an uninitialized driver. Cancelling ctx has the same effect on in-flight
// port operations as Close.
func NewDriver(ctx context.Context, conf Config, logger logging.Logger, opts ...Option) *Driver {
	conf.ApplyDefaults()
	closeCtx, closeFunc := context.WithCancel(ctx)
	d := &Driver{
		conf:         conf,
		logger:       logger,
		clock:        clock.New(),
		closeCtx:     closeCtx,
		closeFunc:    closeFunc,
		scans:        make(chan lidar.Scan, conf.ScanBuffer),
		errs:         make(chan error, 1),
		scanPeriod:   utils.NewRollingAverage(scanRateSamples),
		readWarnings: rate.Sometimes{First: 3, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}

// Scans delivers one Scan per rotation, in order. It is closed by Close.
func (d *Driver) Scans() <-chan lidar.Scan {
	return d.scans
}

// Errors delivers validation and setup errors. Errors are dropped if nobody is listening.
func (d *Driver) Errors() <-chan error {
	return d.errs
}

// DroppedScans is how many scans were discarded because the consumer fell behind.
func (d *Driver) DroppedScans() uint64 {
	return d.droppedScans.Load()
}

// BadRecords is how many records failed validation.
func (d *Driver) BadRecords() uint64 {
	return d.badRecords.Load()
}

// Initialize opens the serial port and resets the device.
func (d *Driver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	if d.State() == StateClosed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.port == nil {
		port, err := serial.Open(d.conf.SerialPath, d.conf.serialOptions())
		if err != nil {
			d.mu.Unlock()
			return errors.Wrapf(ErrDeviceUnavailable, "opening %q: %v", d.conf.SerialPath, err)
		}
		d.port = port
	}
	d.setState(StateInitialized)
	d.mu.Unlock()

	d.logger.CInfof(ctx, "lidar opened on %s at %d baud", d.conf.SerialPath, d.conf.BaudRate)
	guard := utils.NewGuard(func() {
		d.state.CompareAndSwap(int32(StateInitialized), int32(StateUninitialized))
	})
	defer guard.OnFail()
	if err := d.Reset(ctx); err != nil {
		return err
	}
	guard.Success()
	return nil
}

// StartScan stops any running scan, asks the device to scan and starts reading records in the
// background.
func (d *Driver) StartScan(ctx context.Context) error {
	d.stopScanLoop()
	port, err := d.getPort()
	if err != nil {
		return err
	}
	d.clearAccumulator()

	ctx, cancel := d.primitiveContext(ctx)
	defer cancel()

	if err := d.write(ctx, port, command(scanByte)); err != nil {
		return err
	}
	descriptor, err := port.Read(ctx, descriptorLength, d.conf.ReadTimeout)
	if err == nil {
		err = checkDescriptor(descriptor)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		setupErr := errors.Wrap(ErrSetup, err.Error())
		d.logger.CErrorw(ctx, "scan setup failed", "error", err)
		d.emitError(setupErr)
		return multierr.Combine(setupErr, d.Stop(ctx))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == StateClosed {
		return ErrClosed
	}
	d.scanWorkers = utils.NewStoppableWorkersWithContext(d.closeCtx, d.scanLoop)
	d.setState(StateScanning)
	d.logger.CDebug(ctx, "scan started")
	return nil
}

func (d *Driver) scanLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		// Reads run on the driver-wide context so stopping the loop lets a record in flight
		// complete.
		err := d.Read(d.closeCtx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed), errors.Is(err, serial.ErrClosed),
			errors.Is(err, ErrNotInitialized):
			return
		case errors.Is(err, serial.ErrTimeout):
			d.logger.Debugw("no scan data", "error", err)
		default:
			d.readWarnings.Do(func() {
				d.logger.Warnw("error reading scan record", "error", err, "bad_records", d.badRecords.Load())
			})
		}
	}
}

// Read reads and decodes one record. A new-scan record completes the previous rotation and
// publishes it on Scans. Invalid records are counted, reported on Errors and cause the input
// to be drained.
func (d *Driver) Read(ctx context.Context) error {
	port, err := d.getPort()
	if err != nil {
		return err
	}
	record, err := port.Read(ctx, lidar.RecordSize, d.conf.ReadTimeout)
	if err != nil {
		return errors.Wrap(err, "reading scan record")
	}
	hit, err := lidar.FormatData(record)
	if err != nil {
		return err
	}

	if hit.IsNewScanStart {
		d.publishScan()
	}
	if !hit.Error {
		d.accMu.Lock()
		d.accumulator = append(d.accumulator, hit)
		d.accMu.Unlock()
		return nil
	}

	d.badRecords.Inc()
	d.logger.Debugw("bad scan record", "record", record)
	d.emitError(errors.Wrapf(ErrBadRecord, "% x", record))
	drainCtx, cancel := context.WithTimeout(ctx, d.conf.DrainTimeout)
	defer cancel()
	if err := port.Drain(drainCtx); err != nil {
		return errors.Wrap(err, "draining after bad record")
	}
	return nil
}

func (d *Driver) publishScan() {
	now := d.clock.Now()
	d.accMu.Lock()
	scan := lidar.Scan{Hits: d.accumulator, Timestamp: now}
	d.accumulator = nil
	if !d.lastScanAt.IsZero() {
		d.scanPeriod.Add(now.Sub(d.lastScanAt).Seconds())
	}
	d.lastScanAt = now
	d.accMu.Unlock()
	if scan.Hits == nil {
		scan.Hits = []lidar.Hit{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == StateClosed {
		return
	}
	select {
	case d.scans <- scan:
	default:
		d.droppedScans.Inc()
		d.logger.Warnw("scan consumer is behind, dropping scan", "hits", len(scan.Hits), "dropped", d.droppedScans.Load())
	}
}

func (d *Driver) clearAccumulator() {
	d.accMu.Lock()
	d.accumulator = nil
	d.lastScanAt = time.Time{}
	d.accMu.Unlock()
	d.scanPeriod.Reset()
}

// ScanRate is the recent rotation rate in Hz, 0 until two scans have started.
func (d *Driver) ScanRate() float64 {
	period := d.scanPeriod.Average()
	if period <= 0 {
		return 0
	}
	return 1 / period
}

func (d *Driver) emitError(err error) {
	select {
	case d.errs <- err:
	default:
	}
}

// Stop ends the background scan and tells the device to stop.
func (d *Driver) Stop(ctx context.Context) error {
	d.stopScanLoop()
	port, err := d.getPort()
	if err != nil {
		return err
	}
	ctx, cancel := d.primitiveContext(ctx)
	defer cancel()
	if err := d.write(ctx, port, command(stopByte)); err != nil {
		return err
	}
	d.setState(StateStopped)
	return nil
}

// Reset ends the background scan, resets the device and waits for it to come back.
func (d *Driver) Reset(ctx context.Context) error {
	d.stopScanLoop()
	port, err := d.getPort()
	if err != nil {
		return err
	}
	ctx, cancel := d.primitiveContext(ctx)
	defer cancel()
	if err := d.write(ctx, port, command(resetByte)); err != nil {
		return err
	}

	if !utils.SelectContextOrWaitClock(ctx, d.clock, d.conf.ResetSettle) {
		return ctx.Err()
	}
	// Anything the device printed while booting is not a record.
	if err := port.Drain(ctx); err != nil {
		d.logger.CWarnw(ctx, "failed to drain after reset", "error", err)
	}
	d.clearAccumulator()
	d.setState(StateInitialized)
	return nil
}

// Info queries the device model, firmware and serial number. It fails while scanning.
func (d *Driver) Info(ctx context.Context) (Info, error) {
	data, err := d.query(ctx, getInfoByte, infoLength)
	if err != nil {
		return Info{}, err
	}
	return parseInfo(data)
}

// Health queries the device self check.
func (d *Driver) Health(ctx context.Context) (Health, error) {
	data, err := d.query(ctx, getHealthByte, healthLength)
	if err != nil {
		return Health{}, err
	}
	return parseHealth(data)
}

func (d *Driver) query(ctx context.Context, cmd byte, length int) ([]byte, error) {
	if d.State() == StateScanning {
		return nil, ErrScanning
	}
	port, err := d.getPort()
	if err != nil {
		return nil, err
	}
	ctx, cancel := d.primitiveContext(ctx)
	defer cancel()
	if err := d.write(ctx, port, command(cmd)); err != nil {
		return nil, err
	}
	descriptor, err := port.Read(ctx, descriptorLength, d.conf.ReadTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "reading response descriptor")
	}
	if err := checkDescriptor(descriptor); err != nil {
		return nil, err
	}
	data, err := port.Read(ctx, length, d.conf.ReadTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	return data, nil
}

// Close stops scanning and closes the port. The Scans channel is closed.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		d.closeFunc()
		d.stopScanLoop()

		d.mu.Lock()
		defer d.mu.Unlock()
		d.setState(StateClosed)
		if d.port != nil {
			err = d.port.Close()
			d.port = nil
		}
		close(d.scans)
		d.logger.CDebug(ctx, "lidar closed")
	})
	return err
}

func (d *Driver) stopScanLoop() {
	d.mu.Lock()
	workers := d.scanWorkers
	d.scanWorkers = nil
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

func (d *Driver) getPort() (serial.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == StateClosed {
		return nil, ErrClosed
	}
	if d.port == nil || d.State() == StateUninitialized {
		return nil, ErrNotInitialized
	}
	return d.port, nil
}

// primitiveContext is ctx, also cancelled when the driver closes.
func (d *Driver) primitiveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(d.closeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (d *Driver) write(ctx context.Context, port serial.Port, data []byte) error {
	if err := port.Write(ctx, data, d.conf.WriteTimeout); err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.CWarnw(ctx, "lidar write failed", "command", data, "error", err)
		}
		return errors.Wrapf(err, "writing % x", data)
	}
	return nil
}
