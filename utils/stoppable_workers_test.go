package utils

import (
	"context"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	t.Run("stop waits for workers", func(t *testing.T) {
		exited := atomic.NewInt32(0)
		sw := NewStoppableWorkers(func(ctx context.Context) {
			<-ctx.Done()
			exited.Inc()
		}, func(ctx context.Context) {
			<-ctx.Done()
			exited.Inc()
		})
		sw.Stop()
		test.That(t, exited.Load(), test.ShouldEqual, int32(2))

		// no-op once stopped
		sw.AddWorkers(func(ctx context.Context) { exited.Inc() })
		time.Sleep(10 * time.Millisecond)
		test.That(t, exited.Load(), test.ShouldEqual, int32(2))
	})

	t.Run("parent cancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		sw := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
			<-ctx.Done()
			close(done)
		})
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not observe parent cancellation")
		}
		test.That(t, sw.Context().Err(), test.ShouldNotBeNil)
		sw.Stop()
	})
}

func TestMath(t *testing.T) {
	test.That(t, ModAngDeg(-90), test.ShouldEqual, 270.0)
	test.That(t, ModAngDeg(720), test.ShouldEqual, 0.0)
	test.That(t, ClampInt(700, -500, 500), test.ShouldEqual, 500)
	test.That(t, ClampInt(-700, -500, 500), test.ShouldEqual, -500)
	test.That(t, ClampInt(42, -500, 500), test.ShouldEqual, 42)
	x, y := RayToUpwardCWCartesian(90, 10)
	test.That(t, x, test.ShouldAlmostEqual, 10.0)
	test.That(t, y, test.ShouldAlmostEqual, 0.0)
}
