package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/navbot/navbot/logging"
)

// SlowLogger warns with msg after two seconds and then every five until the returned func is
// called or ctx is done.
func SlowLogger(ctx context.Context, clk clock.Clock, msg string, logger logging.Logger, keysAndValues ...interface{}) func() {
	slowTicker := clk.Ticker(2 * time.Second)
	firstTick := true

	ctxWithCancel, cancel := context.WithCancel(ctx)
	startTime := clk.Now()
	go func() {
		for {
			select {
			case <-slowTicker.C:
				elapsed := clk.Since(startTime).Round(time.Second).String()
				fields := append(append([]interface{}{}, keysAndValues...), "time_elapsed", elapsed)
				logger.CWarnw(ctx, msg, fields...)
				if firstTick {
					slowTicker.Reset(5 * time.Second)
					firstTick = false
				}
			case <-ctxWithCancel.Done():
				return
			}
		}
	}()
	return func() { slowTicker.Stop(); cancel() }
}
