package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestSelectContextOrWaitClock(t *testing.T) {
	mock := clock.NewMock()
	done := make(chan bool)
	go func() {
		done <- SelectContextOrWaitClock(context.Background(), mock, time.Second)
	}()

	// wait for the timer to be registered before moving time forward
	for {
		select {
		case ok := <-done:
			test.That(t, ok, test.ShouldBeTrue)
			return
		default:
			mock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSelectContextOrWaitClockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, SelectContextOrWaitClock(ctx, clock.NewMock(), time.Hour), test.ShouldBeFalse)
	test.That(t, SelectContextOrWaitClock(ctx, clock.New(), 0), test.ShouldBeFalse)
	test.That(t, SelectContextOrWaitClock(context.Background(), clock.New(), 0), test.ShouldBeTrue)
}
