package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the goroutine count exceeds the threshold,
// indicating a probable leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("too many goroutines: %d > %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when the most recent garbage collection pause
// exceeded the threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	thresholdNs := uint64(threshold.Nanoseconds())
	return func(context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		for _, pause := range stats.PauseNs {
			if pause > thresholdNs {
				return errors.Errorf("gc pause too long: %v > %v", time.Duration(pause), threshold)
			}
		}
		return nil
	}
}

// DatabasePingCheck verifies connectivity against anything exposing a Ping
// method, such as a pgx pool.
func DatabasePingCheck(pinger interface {
	Ping(ctx context.Context) error
}) CheckFunc {
	return func(ctx context.Context) error {
		if err := pinger.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping database")
		}
		return nil
	}
}
