package create

import (
	"context"

	"github.com/pkg/errors"

	"github.com/navbot/navbot/serial"
	"github.com/navbot/navbot/utils"
)

// StartSync starts the sync loop if it is not already running.
func (b *Base) StartSync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.port == nil {
		return ErrNotInitialized
	}
	if b.syncActive.Load() {
		return nil
	}
	if b.syncWorkers != nil {
		// the previous loop stopped itself, reap it
		b.syncWorkers.Stop()
	}
	b.syncActive.Store(true)
	b.syncWorkers = utils.NewStoppableWorkersWithContext(b.closeCtx, b.syncLoop)
	return nil
}

// StopSync stops the sync loop and waits for it to exit.
func (b *Base) StopSync() {
	b.mu.Lock()
	workers := b.syncWorkers
	b.syncWorkers = nil
	b.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	b.syncActive.Store(false)
}

// IsEnabled reports whether the sync loop is running.
func (b *Base) IsEnabled() bool {
	return b.syncActive.Load()
}

func (b *Base) syncLoop(ctx context.Context) {
	defer b.syncActive.Store(false)
	for {
		start := b.clock.Now()
		if err := b.syncCycle(ctx); err != nil {
			if transportGone(ctx, err) {
				b.logger.Debugw("sync stopped", "error", err)
				return
			}
			b.syncWarnings.Do(func() {
				b.logger.Warnw("sync cycle failed", "error", err)
			})
		}
		if !utils.SelectContextOrWaitClock(ctx, b.clock, b.conf.SyncPeriod-b.clock.Since(start)) {
			return
		}
	}
}

func transportGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, serial.ErrClosed) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrNotInitialized)
}

// syncCycle runs one cycle: reset if asked to, step the mode, push wheel speeds, read sensors.
func (b *Base) syncCycle(ctx context.Context) error {
	port, err := b.getPort()
	if err != nil {
		return err
	}

	if b.resetRequested.CompareAndSwap(true, false) {
		if err := b.write(ctx, port, []byte{opReset}); err != nil {
			return err
		}
		if !utils.SelectContextOrWaitClock(ctx, b.clock, b.conf.ResetSettle) {
			return ctx.Err()
		}
		b.confirmedMode.Store(int32(ModePassive))
		b.desiredMode.Store(int32(b.target))
		b.logger.Infow("base reset", "target", b.target)
		return nil
	}

	confirmed := b.Mode()
	step := nextModeStep(confirmed, b.DesiredMode())
	if step != confirmed {
		if err := b.write(ctx, port, []byte{mode2Code(step)}); err != nil {
			return err
		}
		if confirmed == ModeOff && step == ModePassive {
			// starting the interface prints a banner
			if err := port.Drain(ctx); err != nil {
				return errors.Wrap(err, "draining after start")
			}
		}
		if !utils.SelectContextOrWaitClock(ctx, b.clock, b.conf.ModeSettle) {
			return ctx.Err()
		}
		confirmed = b.GetMode(ctx)
		b.confirmedMode.Store(int32(confirmed))
		b.logger.Debugw("mode step", "commanded", step, "confirmed", confirmed)
	}
	if confirmed == ModeOff {
		return nil
	}

	left, right := b.Speeds()
	if err := b.write(ctx, port, driveCommand(left, right)); err != nil {
		return err
	}

	if err := b.write(ctx, port, sensorsQuery()); err != nil {
		return err
	}
	packet, err := port.Read(ctx, sensorPacketLen, b.conf.CommandTimeout)
	if err != nil {
		return errors.Wrap(err, "reading sensor packet")
	}
	return b.applySensorPacket(packet)
}

func (b *Base) applySensorPacket(packet []byte) error {
	b.stateMu.Lock()
	err := parseSensorPacket(packet, &b.state, &b.odo)
	state := b.state
	b.stateMu.Unlock()
	if err != nil {
		return err
	}

	b.bumpLeft.Store(state.BumpLeft)
	b.bumpRight.Store(state.BumpRight)
	// the base drops to passive on its own, e.g. on a cliff in safe mode
	if mode := Mode(b.confirmedMode.Load()); mode != state.OIMode {
		b.logger.Debugw("base reported mode change", "from", mode, "to", state.OIMode)
		b.confirmedMode.Store(int32(state.OIMode))
	}
	return nil
}

// GetMode asks the base for its mode. An unresponsive base is off.
func (b *Base) GetMode(ctx context.Context) Mode {
	port, err := b.getPort()
	if err != nil {
		return ModeOff
	}
	if err := port.Drain(ctx); err != nil {
		b.logger.CDebugw(ctx, "drain before mode query failed", "error", err)
	}
	if err := b.write(ctx, port, modeQuery()); err != nil {
		return ModeOff
	}
	resp, err := port.Read(ctx, 1, b.conf.ModeProbeTimeout)
	if err != nil {
		b.logger.CDebugw(ctx, "no mode reply, assuming off", "error", err)
		return ModeOff
	}
	mode, ok := modeFromByte(resp[0])
	if !ok {
		b.logger.CDebugw(ctx, "garbage mode reply, assuming off", "reply", resp[0])
		return ModeOff
	}
	return mode
}

// ResetOdometry zeroes the accumulated distance, angle and wheel travel.
func (b *Base) ResetOdometry() {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.odo.reset(&b.state)
}

func (b *Base) wheelDistances() (left, right float64) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state.Odometry.LeftWheelDistance, b.state.Odometry.RightWheelDistance
}

func (b *Base) write(ctx context.Context, port serial.Port, data []byte) error {
	if err := port.Write(ctx, data, b.conf.CommandTimeout); err != nil {
		return errors.Wrapf(err, "writing % x", data)
	}
	return nil
}
