package create

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/navbot/navbot/operation"
	"github.com/navbot/navbot/utils"
)

// errHaltRequested is the cancellation cause of a motion stopped by Halt.
var errHaltRequested = errors.New("halt requested")

// ErrZeroSpeed is returned by bounded motions asked to move at speed 0.
var ErrZeroSpeed = errors.New("speed must not be zero")

// MotionState is what the base is currently doing.
type MotionState int32

// Motion states.
const (
	Stopped MotionState = iota
	Moving
	Rotating
)

func (s MotionState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Moving:
		return "moving"
	case Rotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// StopReason is why a motion ended.
type StopReason int

// Stop reasons.
const (
	// StopRequested is a Halt.
	StopRequested StopReason = iota
	// StopSuccess is a bounded motion reaching its target.
	StopSuccess
	// StopCollision is a bumper press.
	StopCollision
	// StopCancellation is a motion superseded by another or ended by shutdown.
	StopCancellation
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "requested"
	case StopSuccess:
		return "success"
	case StopCollision:
		return "collision"
	case StopCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// StopEvent is sent on Stopped when a motion ends.
type StopEvent struct {
	Reason      StopReason
	OperationID uuid.UUID
	Time        time.Time
}

// Tracking selects what a bounded motion measures its progress with.
type Tracking int

// Progress measures.
const (
	EncoderBased Tracking = iota
	TimeBased
)

// CurrentState is the motion state.
func (b *Base) CurrentState() MotionState {
	return MotionState(b.motionState.Load())
}

// Stopped delivers an event whenever a motion ends. Events are dropped if the buffer is full.
func (b *Base) Stopped() <-chan StopEvent {
	return b.stopped
}

func (b *Base) emitStop(ev StopEvent) {
	select {
	case b.stopped <- ev:
	default:
		b.logger.Debugw("stop event dropped", "reason", ev.Reason)
	}
}

// Halt ends the running motion and stops the wheels. It returns once the wheels are commanded
// to stop.
func (b *Base) Halt(ctx context.Context) error {
	if b.opMgr.CancelRunningWithCause(ctx, errHaltRequested) {
		return nil
	}
	b.setSpeeds(0, 0)
	b.motionState.Store(int32(Stopped))
	b.emitStop(StopEvent{Reason: StopRequested, Time: b.clock.Now()})
	return nil
}

// SetSpeed drives the wheels at the given speeds in mm/s until another motion, Halt or a bumper
// press. Equal speeds are held straight with course correction.
func (b *Base) SetSpeed(ctx context.Context, left, right int) error {
	state := Moving
	if left == -right && left != 0 {
		state = Rotating
	}
	return b.startMotion(ctx, state, left, right, func(ctx context.Context, m *motion) StopReason {
		return m.run(ctx, func() (int, int, bool) {
			if left == right {
				l, r := b.correctCourse(left, right)
				return l, r, false
			}
			return left, right, false
		})
	})
}

// MoveIndefinite drives straight at speed until another motion, Halt or a bumper press.
func (b *Base) MoveIndefinite(ctx context.Context, speed int) error {
	return b.startMotion(ctx, Moving, speed, speed, func(ctx context.Context, m *motion) StopReason {
		return m.run(ctx, func() (int, int, bool) {
			l, r := b.correctCourse(speed, speed)
			return l, r, false
		})
	})
}

// MoveDistance drives straight for distanceMM, backwards if it is negative, at |speed| mm/s.
func (b *Base) MoveDistance(ctx context.Context, speed, distanceMM int, tracking Tracking) error {
	if speed == 0 {
		return ErrZeroSpeed
	}
	speed = utils.AbsInt(speed)
	if distanceMM < 0 {
		speed = -speed
	}
	target := math.Abs(float64(distanceMM))

	if tracking == TimeBased {
		duration := time.Duration(target * 1000 / math.Abs(float64(speed)) * float64(time.Millisecond))
		return b.startMotion(ctx, Moving, speed, speed, func(ctx context.Context, m *motion) StopReason {
			return m.run(ctx, func() (int, int, bool) {
				if m.elapsed() >= duration {
					return 0, 0, true
				}
				l, r := b.correctCourse(speed, speed)
				return l, r, false
			})
		})
	}

	return b.startMotion(ctx, Moving, speed, speed, func(ctx context.Context, m *motion) StopReason {
		return m.run(ctx, func() (int, int, bool) {
			leftDist, rightDist := b.wheelDistances()
			if leftDist >= target || rightDist >= target {
				return 0, 0, true
			}
			coef := b.stopCoefficient((leftDist+rightDist)/2, target)
			nominal := decelerated(speed, coef)
			l, r := b.correctCourse(nominal, nominal)
			return l, r, false
		})
	})
}

// Rotate turns in place by degrees, clockwise when positive, at |speed| mm/s per wheel.
func (b *Base) Rotate(ctx context.Context, speed, degrees int, tracking Tracking) error {
	if speed == 0 {
		return ErrZeroSpeed
	}
	speed = utils.AbsInt(speed)
	left, right := speed, -speed
	if degrees < 0 {
		left, right = -speed, speed
	}
	rads := utils.DegToRad(math.Abs(float64(degrees)))

	if tracking == TimeBased {
		seconds := rads * b.conf.RotateTimeConstantMM / float64(speed)
		duration := time.Duration(seconds * float64(time.Second))
		return b.startMotion(ctx, Rotating, left, right, func(ctx context.Context, m *motion) StopReason {
			return m.run(ctx, func() (int, int, bool) {
				return left, right, m.elapsed() >= duration
			})
		})
	}

	target := rads * (b.conf.DriveTrainDiameterMM / 2) * b.conf.RotateArcScale
	return b.startMotion(ctx, Rotating, left, right, func(ctx context.Context, m *motion) StopReason {
		return m.run(ctx, func() (int, int, bool) {
			leftDist, rightDist := b.wheelDistances()
			// watch the wheel driving forward
			travelled := leftDist
			if degrees < 0 {
				travelled = rightDist
			}
			return left, right, travelled >= target
		})
	})
}

// stopCoefficient scales speed down as avg approaches target.
func (b *Base) stopCoefficient(avg, target float64) float64 {
	coef := 1 - math.Exp(b.conf.DecelRate*(avg-target-b.conf.DecelOffsetMM))
	return math.Max(0, math.Min(1, coef))
}

// minMoveSpeed is the slowest an encoder-based move decelerates to, in mm/s. Slower commands
// would stall the wheels short of the target.
const minMoveSpeed = 10

// decelerated scales speed by coef without dropping below minMoveSpeed, or below |speed| when that
// is slower, keeping the sign of speed.
func decelerated(speed int, coef float64) int {
	magnitude := int(float64(utils.AbsInt(speed)) * coef)
	if floor := min(minMoveSpeed, utils.AbsInt(speed)); magnitude < floor {
		magnitude = floor
	}
	if speed < 0 {
		return -magnitude
	}
	return magnitude
}

// correctCourse slows the wheel that has travelled further so the base keeps a straight line.
func (b *Base) correctCourse(left, right int) (int, int) {
	leftDist, rightDist := b.wheelDistances()
	return courseCorrection(left, right, leftDist, rightDist, b.conf.DriveTrainDiameterMM)
}

func courseCorrection(left, right int, leftDist, rightDist, driveTrainMM float64) (int, int) {
	rads := (leftDist - rightDist) / driveTrainMM
	ratio := math.Min(2*math.Abs(rads), 1)
	if rads < 0 {
		right -= int(ratio * float64(right))
	} else {
		left -= int(ratio * float64(left))
	}
	return left, right
}

type motion struct {
	base    *Base
	started time.Time
}

func (m *motion) elapsed() time.Duration {
	return m.base.clock.Since(m.started)
}

// run calls step every motion poll and applies the speeds it returns until it reports done, the
// motion is cancelled or a bumper is pressed.
func (m *motion) run(ctx context.Context, step func() (left, right int, done bool)) StopReason {
	b := m.base
	ticker := b.clock.Ticker(b.conf.MotionPoll)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return cancelReason(ctx)
		}
		if b.bumped() {
			return StopCollision
		}
		left, right, done := step()
		if done {
			return StopSuccess
		}
		b.setSpeeds(left, right)

		select {
		case <-ctx.Done():
			return cancelReason(ctx)
		case <-ticker.C:
		}
	}
}

func cancelReason(ctx context.Context) StopReason {
	if errors.Is(context.Cause(ctx), errHaltRequested) {
		return StopRequested
	}
	return StopCancellation
}

// startMotion supersedes the running motion, resets odometry and runs loop in the background.
func (b *Base) startMotion(
	ctx context.Context,
	state MotionState,
	left, right int,
	loop func(context.Context, *motion) StopReason,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.getPort(); err != nil {
		return err
	}

	// waits for the previous motion to zero its speeds before this one starts
	opCtx, done := b.opMgr.New(b.closeCtx)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		done()
		return ErrClosed
	}
	b.motionWorkers.Add(1)
	b.mu.Unlock()

	b.ResetOdometry()
	b.setSpeeds(left, right)
	b.motionState.Store(int32(state))
	m := &motion{base: b, started: b.clock.Now()}
	id := operation.ID(opCtx)
	b.logger.CDebugw(ctx, "motion started", "id", id, "state", state, "left", left, "right", right)

	goutils.PanicCapturingGo(func() {
		defer b.motionWorkers.Done()
		defer done()
		reason := loop(opCtx, m)
		b.setSpeeds(0, 0)
		b.motionState.Store(int32(Stopped))
		b.logger.Debugw("motion stopped", "id", id, "reason", reason)
		b.emitStop(StopEvent{Reason: reason, OperationID: id, Time: b.clock.Now()})
	})
	return nil
}
