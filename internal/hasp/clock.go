package hasp

import "time"

// wallClockMicros returns the low 16 bits of the current time's
// microsecond-of-second component, the entropy mixed into EncodedStatus on
// every dispatch (spec.md §4.4, design note "Entropy from wall clock").
// CommandDispatcher.Clock exists so tests can replace this with a fixed or
// sequenced value instead of reading the real clock.
func wallClockMicros() uint16 {
	micros := time.Now().Nanosecond() / 1000
	return uint16(micros & 0xFFFF)
}
