package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/schizzz8/lucrezio-semantic-perception/logging"
)

// SlowLogger warns with msg after 2s, 5s and then every 5s for as long as the returned function has
// not been called and ctx is live. Call the returned function once the slow operation completes.
func SlowLogger(ctx context.Context, clk clock.Clock, logger logging.Logger, msg string, keysAndValues ...interface{}) func() {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	start := clk.Now()
	timer := clk.Timer(2 * time.Second)
	done := make(chan struct{})
	firstTick := true
	go func() {
		defer close(done)
		defer timer.Stop()
		for {
			select {
			case <-ctxWithCancel.Done():
				return
			case <-timer.C:
			}
			elapsed := clk.Since(start).Round(time.Second).String()
			fields := append(append([]interface{}{}, keysAndValues...), "time_elapsed", elapsed)
			logger.CWarnw(ctx, msg, fields...)
			if firstTick {
				timer.Reset(3 * time.Second)
				firstTick = false
			} else {
				timer.Reset(5 * time.Second)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
