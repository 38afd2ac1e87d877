// Package clock implements the timing-precision primitives of
// spec.md §5: calibrating the OS's minimum reliable sleep duration at
// startup, then using that calibration to hit a tick deadline with a
// coarse sleep followed by a busy-wait tail.
package clock

import "time"

// CalibrateMinSleep samples the OS sleep resolution by requesting the
// shortest possible sleep (time.Sleep(1)) samples times and returns
// the largest observed duration, per spec.md §5: "sampling 100 sleeps
// of the system's finest granularity and using the maximum observed
// value as the min_sleep."
func CalibrateMinSleep(samples int) time.Duration {
	var maxObserved time.Duration
	for i := 0; i < samples; i++ {
		start := time.Now()
		time.Sleep(time.Nanosecond)
		elapsed := time.Since(start)
		if elapsed > maxObserved {
			maxObserved = elapsed
		}
	}
	return maxObserved
}

// SleepUntil blocks until deadline, per spec.md §5's rule: sleep
// 0.9 * remaining when remaining exceeds 1.2 * minSleep, then
// busy-wait the rest. If the deadline has already passed, it returns
// immediately.
func SleepUntil(deadline time.Time, minSleep time.Duration) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > (minSleep*12)/10 {
			time.Sleep((remaining * 9) / 10)
			continue
		}
		break
	}
	for time.Now().Before(deadline) {
		// Busy-wait tail for precise timing on the last sliver.
	}
}
