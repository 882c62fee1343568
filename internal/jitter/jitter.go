// Package jitter implements the deterministic jittered-delay function
// shared by the poller's lease backoff and the heartbeat scheduler's
// debounce window: a function of the current wall-clock sub-second
// component, clamped to [min, max].
package jitter

import "time"

// Delay returns a value in [min, max]. When max <= min it returns min.
func Delay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	sub := time.Duration(time.Now().Nanosecond()) % span
	return min + sub
}
