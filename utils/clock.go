package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// SelectContextOrWaitClock is goutils.SelectContextOrWait on the given clock. It waits for dur
// and returns true, or returns false early if ctx is done.
func SelectContextOrWaitClock(ctx context.Context, clk clock.Clock, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	timer := clk.Timer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	return ctx.Err() == nil
}
