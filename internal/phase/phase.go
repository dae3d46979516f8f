// Package phase derives "where in the loop" a looping broadcast should
// currently sit from nothing but wall-clock time. Every listener with a
// roughly synchronized clock computes the same offset independently, so
// no coordination or central streaming server is needed.
package phase

import (
	"math"
	"time"
)

// SecondsPerDay is the master timeline every client shares: the UTC
// calendar day.
const SecondsPerDay = 86400.0

// Compute maps a track duration and an instant to a playback offset in
// [0, duration). The track loops a fixed number of times per UTC day, so
// two callers with synchronized clocks always land on the same offset.
// A non-finite or non-positive duration yields 0.
func Compute(durationSeconds float64, now time.Time) float64 {
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds <= 0 {
		return 0
	}

	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	dayProgress := utc.Sub(midnight).Seconds() / SecondsPerDay

	loopsPerDay := SecondsPerDay / durationSeconds
	_, frac := math.Modf(loopsPerDay * dayProgress)

	offset := durationSeconds * frac
	// Guard the half-open interval against float rounding.
	if offset < 0 || offset >= durationSeconds {
		return 0
	}
	return offset
}

// Drift is the circular distance between two offsets on a ring of size
// duration. Symmetric, and never more than duration/2.
func Drift(a, b, durationSeconds float64) float64 {
	if math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds <= 0 {
		return 0
	}
	d := math.Mod(math.Abs(a-b), durationSeconds)
	return math.Min(d, durationSeconds-d)
}
