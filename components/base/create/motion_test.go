package create

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func nextStop(t *testing.T, b *Base) StopEvent {
	t.Helper()
	select {
	case ev := <-b.Stopped():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop event")
	}
	return StopEvent{}
}

func noStop(t *testing.T, b *Base) {
	t.Helper()
	select {
	case ev := <-b.Stopped():
		t.Fatalf("unexpected stop event %v", ev.Reason)
	case <-time.After(20 * time.Millisecond):
	}
}

func speedsShouldBe(tb testing.TB, b *Base, left, right int) {
	tb.Helper()
	l, r := b.Speeds()
	test.That(tb, l, test.ShouldEqual, left)
	test.That(tb, r, test.ShouldEqual, right)
}

// feedEncoders applies a sensor packet as the sync loop would.
func feedEncoders(t *testing.T, b *Base, left, right uint16) {
	t.Helper()
	test.That(t, b.applySensorPacket(sensorPacket(packetFields{mode: ModeFull, left: left, right: right})), test.ShouldBeNil)
}

func TestSetSpeedThenHalt(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	ctx := context.Background()

	test.That(t, b.SetSpeed(ctx, 100, 100), test.ShouldBeNil)
	test.That(t, b.CurrentState(), test.ShouldEqual, Moving)
	speedsShouldBe(t, b, 100, 100)

	test.That(t, b.Halt(ctx), test.ShouldBeNil)
	speedsShouldBe(t, b, 0, 0)
	test.That(t, b.CurrentState(), test.ShouldEqual, Stopped)
	ev := nextStop(t, b)
	test.That(t, ev.Reason, test.ShouldEqual, StopRequested)
	test.That(t, ev.OperationID, test.ShouldNotEqual, uuid.Nil)

	// nothing writes the old speeds back
	time.Sleep(20 * time.Millisecond)
	speedsShouldBe(t, b, 0, 0)
	test.That(t, b.opMgr.OpRunning(), test.ShouldBeFalse)
}

func TestHaltWhileIdle(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.Halt(context.Background()), test.ShouldBeNil)
	ev := nextStop(t, b)
	test.That(t, ev.Reason, test.ShouldEqual, StopRequested)
	test.That(t, ev.OperationID, test.ShouldEqual, uuid.Nil)
}

func TestSupersede(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	ctx := context.Background()

	test.That(t, b.MoveIndefinite(ctx, 200), test.ShouldBeNil)
	test.That(t, b.SetSpeed(ctx, 50, -50), test.ShouldBeNil)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopCancellation)
	test.That(t, b.CurrentState(), test.ShouldEqual, Rotating)
	speedsShouldBe(t, b, 50, -50)
	noStop(t, b)
}

func TestCollision(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.MoveIndefinite(context.Background(), 200), test.ShouldBeNil)
	noStop(t, b)

	test.That(t, b.applySensorPacket(sensorPacket(packetFields{mode: ModeFull, bumps: 0x01})), test.ShouldBeNil)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopCollision)
	speedsShouldBe(t, b, 0, 0)
	test.That(t, b.CurrentState(), test.ShouldEqual, Stopped)
}

func TestCourseCorrectedMove(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.MoveIndefinite(context.Background(), 200), test.ShouldBeNil)

	// the right wheel got ahead, so it is slowed down
	feedEncoders(t, b, 1000, 1000)
	feedEncoders(t, b, 1000, 1106)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		l, r := b.Speeds()
		test.That(tb, l, test.ShouldEqual, 200)
		test.That(tb, r, test.ShouldBeLessThan, 200)
		test.That(tb, r, test.ShouldBeGreaterThan, 100)
	})
}

func TestTimedMotion(t *testing.T) {
	clk := clock.NewMock()
	conf := testConfig()
	conf.MotionPoll = 10 * time.Millisecond
	b, _ := newTestBase(t, conf, &fakeCreate{}, WithClock(clk))
	ctx := context.Background()

	// 20 mm at 500 mm/s takes 40 ms
	test.That(t, b.MoveDistance(ctx, 500, -20, TimeBased), test.ShouldBeNil)
	speedsShouldBe(t, b, -500, -500)
	clk.Add(30 * time.Millisecond)
	noStop(t, b)
	clk.Add(10 * time.Millisecond)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopSuccess)
	speedsShouldBe(t, b, 0, 0)

	// 90 degrees at 500 mm/s takes about 366 ms
	test.That(t, b.Rotate(ctx, 500, -90, TimeBased), test.ShouldBeNil)
	test.That(t, b.CurrentState(), test.ShouldEqual, Rotating)
	speedsShouldBe(t, b, -500, 500)
	clk.Add(360 * time.Millisecond)
	noStop(t, b)
	speedsShouldBe(t, b, -500, 500)
	clk.Add(10 * time.Millisecond)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopSuccess)

	test.That(t, b.MoveDistance(ctx, 0, 100, TimeBased), test.ShouldBeError, ErrZeroSpeed)
	test.That(t, b.Rotate(ctx, 0, 100, TimeBased), test.ShouldBeError, ErrZeroSpeed)
}

func TestEncoderMove(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.MoveDistance(context.Background(), 200, 100, EncoderBased), test.ShouldBeNil)
	test.That(t, b.CurrentState(), test.ShouldEqual, Moving)

	// about 44 mm in, slowing down to about 40 mm/s
	feedEncoders(t, b, 1000, 1000)
	feedEncoders(t, b, 1100, 1100)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		l, r := b.Speeds()
		test.That(tb, l, test.ShouldBeLessThan, 50)
		test.That(tb, l, test.ShouldBeGreaterThan, 30)
		test.That(tb, r, test.ShouldEqual, l)
	})
	noStop(t, b)

	// about 133 mm, past the target
	feedEncoders(t, b, 1300, 1300)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopSuccess)
	speedsShouldBe(t, b, 0, 0)
}

func TestSlowEncoderMove(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.MoveDistance(context.Background(), 10, 100, EncoderBased), test.ShouldBeNil)

	// about 98 mm in, the wheels keep turning
	feedEncoders(t, b, 0, 0)
	feedEncoders(t, b, 220, 220)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		speedsShouldBe(tb, b, 10, 10)
	})
	noStop(t, b)
	test.That(t, b.CurrentState(), test.ShouldEqual, Moving)

	feedEncoders(t, b, 240, 240)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopSuccess)
}

func TestDecelerated(t *testing.T) {
	test.That(t, decelerated(200, 0.5), test.ShouldEqual, 100)
	test.That(t, decelerated(-200, 0.5), test.ShouldEqual, -100)
	test.That(t, decelerated(200, 0.01), test.ShouldEqual, minMoveSpeed)
	test.That(t, decelerated(-200, 0), test.ShouldEqual, -minMoveSpeed)
	test.That(t, decelerated(5, 0.1), test.ShouldEqual, 5)
}

func TestEncoderRotate(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.Rotate(context.Background(), 100, 90, EncoderBased), test.ShouldBeNil)
	speedsShouldBe(t, b, 100, -100)

	// the arc is about 170 mm and the left wheel leads a right turn
	feedEncoders(t, b, 0, 0)
	feedEncoders(t, b, 300, 1000)
	noStop(t, b)
	feedEncoders(t, b, 400, 1000)
	test.That(t, nextStop(t, b).Reason, test.ShouldEqual, StopSuccess)
}

func TestStopCoefficient(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	test.That(t, b.stopCoefficient(0, 100), test.ShouldAlmostEqual, 1-math.Exp(-0.88), 1e-9)
	test.That(t, b.stopCoefficient(110, 100), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, b.stopCoefficient(500, 100), test.ShouldEqual, 0.0)
	test.That(t, b.stopCoefficient(-1e6, 100), test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestMotionResetsOdometry(t *testing.T) {
	b, _ := newTestBase(t, testConfig(), &fakeCreate{})
	feedEncoders(t, b, 0, 0)
	feedEncoders(t, b, 500, 500)
	test.That(t, b.State().Odometry.LeftEncoderCounts, test.ShouldEqual, uint32(500))

	test.That(t, b.SetSpeed(context.Background(), 10, 20), test.ShouldBeNil)
	test.That(t, b.State().Odometry, test.ShouldResemble, Odometry{})
	speedsShouldBe(t, b, 10, 20)
}
