// Package create drives an iRobot Create 2 (Roomba Open Interface) mobile base over serial.
//
// A sync loop owns the port. Every cycle it reconciles the operating mode, pushes the
// requested wheel speeds and reads the full sensor packet. Motion primitives run on top of the
// sensor state and only ever change the requested wheel speeds.
package create

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/navbot/navbot/logging"
	"github.com/navbot/navbot/operation"
	"github.com/navbot/navbot/serial"
	"github.com/navbot/navbot/utils"
)

var (
	// ErrDeviceUnavailable is returned when the serial device cannot be opened.
	ErrDeviceUnavailable = errors.New("base device unavailable")
	// ErrInitializationFailed is returned when the base never reaches its configured mode.
	ErrInitializationFailed = errors.New("base initialization failed")
	// ErrNotInitialized is returned by operations that need an open port.
	ErrNotInitialized = errors.New("base not initialized")
	// ErrClosed is returned by operations on a closed base.
	ErrClosed = errors.New("base closed")
)

// Option configures a Base.
type Option func(*Base)

// WithClock sets the clock that paces the sync and motion loops.
func WithClock(c clock.Clock) Option {
	return func(b *Base) {
		b.clock = c
	}
}

// WithPort makes Initialize use an already open port instead of opening SerialPath.
func WithPort(p serial.Port) Option {
	return func(b *Base) {
		b.port = p
	}
}

// Base is a Create 2 mobile base.
type Base struct {
	conf   Config
	logger logging.Logger
	clock  clock.Clock
	target Mode

	closeCtx  context.Context
	closeFunc context.CancelFunc
	closeOnce sync.Once

	mu          sync.Mutex
	port        serial.Port
	syncWorkers utils.StoppableWorkers
	closed      bool
	syncActive  atomic.Bool

	stateMu sync.RWMutex
	state   State
	odo     odometer

	confirmedMode  atomic.Int32
	desiredMode    atomic.Int32
	resetRequested atomic.Bool
	bumpLeft       atomic.Bool
	bumpRight      atomic.Bool

	speedMu    sync.Mutex
	leftSpeed  int
	rightSpeed int

	opMgr         *operation.SingleOperationManager
	motionWorkers sync.WaitGroup
	motionState   atomic.Int32
	stopped       chan StopEvent

	syncWarnings rate.Sometimes
}

// NewBase returns a base that has not touched the hardware yet. Cancelling ctx has the same
// effect on loops and in-flight port operations as Close.
func NewBase(ctx context.Context, conf Config, logger logging.Logger, opts ...Option) (*Base, error) {
	conf.ApplyDefaults()
	target, err := ParseMode(conf.Mode)
	if err != nil {
		return nil, err
	}
	closeCtx, closeFunc := context.WithCancel(ctx)
	b := &Base{
		conf:         conf,
		logger:       logger,
		clock:        clock.New(),
		target:       target,
		closeCtx:     closeCtx,
		closeFunc:    closeFunc,
		odo:          newOdometer(conf.WheelDiameterMM, conf.CountsPerRotation),
		opMgr:        operation.NewSingleOperationManager(),
		stopped:      make(chan StopEvent, conf.StopEventBuffer),
		syncWarnings: rate.Sometimes{First: 3, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Initialize opens the port, probes the current mode, starts syncing and waits for the base to
// reach its configured mode.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.port == nil {
		port, err := serial.Open(b.conf.SerialPath, b.conf.serialOptions())
		if err != nil {
			b.mu.Unlock()
			return errors.Wrapf(ErrDeviceUnavailable, "opening %q: %v", b.conf.SerialPath, err)
		}
		b.port = port
	}
	b.mu.Unlock()

	mode := b.GetMode(ctx)
	b.confirmedMode.Store(int32(mode))
	b.logger.CInfow(ctx, "base opened", "path", b.conf.SerialPath, "mode", mode)

	if err := b.StartSync(); err != nil {
		return err
	}
	guard := utils.NewGuard(b.StopSync)
	defer guard.OnFail()

	slowLogDone := utils.SlowLogger(ctx, b.clock, "waiting for base to reach its mode", b.logger,
		"path", b.conf.SerialPath, "mode", b.target)
	defer slowLogDone()
	if err := b.InitRoomba(ctx, b.conf.InitRetries); err != nil {
		return err
	}
	guard.Success()
	return nil
}

// InitRoomba asks for the configured mode and waits up to retries backoff periods for the
// base to confirm it. The sync loop must be running.
func (b *Base) InitRoomba(ctx context.Context, retries int) error {
	b.desiredMode.Store(int32(b.target))
	for attempt := 1; attempt <= retries; attempt++ {
		if !utils.SelectContextOrWaitClock(ctx, b.clock, b.conf.InitBackoff) {
			return ctx.Err()
		}
		if mode := b.Mode(); mode == b.target {
			b.logger.CInfow(ctx, "base ready", "mode", mode, "attempts", attempt)
			return nil
		}
		b.logger.CDebugw(ctx, "base not in mode yet", "want", b.target, "have", b.Mode(), "attempt", attempt)
	}
	return errors.Wrapf(ErrInitializationFailed, "still in mode %s after %d attempts, want %s",
		b.Mode(), retries, b.target)
}

// SetMode changes the mode the sync loop steers the base towards.
func (b *Base) SetMode(mode Mode) {
	b.desiredMode.Store(int32(mode))
}

// RequestReset makes the next sync cycle reset the base. Afterwards the configured mode is
// entered again.
func (b *Base) RequestReset() {
	b.resetRequested.Store(true)
}

// Mode is the last mode the base confirmed.
func (b *Base) Mode() Mode {
	return Mode(b.confirmedMode.Load())
}

// DesiredMode is the mode the sync loop is steering towards.
func (b *Base) DesiredMode() Mode {
	return Mode(b.desiredMode.Load())
}

// State returns a snapshot of the sensor state.
func (b *Base) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Speeds returns the requested left and right wheel speeds in mm/s.
func (b *Base) Speeds() (left, right int) {
	b.speedMu.Lock()
	defer b.speedMu.Unlock()
	return b.leftSpeed, b.rightSpeed
}

func (b *Base) setSpeeds(left, right int) {
	b.speedMu.Lock()
	defer b.speedMu.Unlock()
	b.leftSpeed = left
	b.rightSpeed = right
}

func (b *Base) bumped() bool {
	return b.bumpLeft.Load() || b.bumpRight.Load()
}

// Close stops all motion and syncing, stops the wheels and closes the port.
func (b *Base) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.closeFunc()
		b.motionWorkers.Wait()
		b.StopSync()

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.port == nil {
			return
		}
		// the close context is gone, so the final commands get their own deadline
		writeCtx, cancel := context.WithTimeout(context.Background(), b.conf.CommandTimeout)
		defer cancel()
		err = multierr.Combine(
			b.port.Write(writeCtx, driveCommand(0, 0), b.conf.CommandTimeout),
			b.port.Write(writeCtx, []byte{mode2Code(ModePassive)}, b.conf.CommandTimeout),
			b.port.Close(),
		)
		b.port = nil
		b.logger.CDebug(ctx, "base closed")
	})
	return err
}

func (b *Base) getPort() (serial.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.port == nil {
		return nil, ErrNotInitialized
	}
	return b.port, nil
}
