package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/navbot/navbot/logging"
)

func TestSlowLogger(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	clk := clock.NewMock()
	done := SlowLogger(context.Background(), clk, "still waiting", logger, "path", "/dev/ttyUSB1")

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		clk.Add(time.Second)
		test.That(tb, logs.FilterMessage("still waiting").Len(), test.ShouldBeGreaterThanOrEqualTo, 1)
	})
	entry := logs.FilterMessage("still waiting").All()[0]
	test.That(t, entry.ContextMap()["path"], test.ShouldEqual, "/dev/ttyUSB1")
	test.That(t, entry.ContextMap()["time_elapsed"], test.ShouldNotBeEmpty)

	done()
	time.Sleep(10 * time.Millisecond)
	seen := logs.FilterMessage("still waiting").Len()
	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	test.That(t, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, seen)
}

func TestGuard(t *testing.T) {
	cleaned := 0
	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)

	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
		guard.Success()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)
}
