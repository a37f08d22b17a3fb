package availability

import (
	"iter"
	"time"
)

// DefaultStep is the slot granularity when none is configured.
const DefaultStep = 15 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps applies the half-open rule: [a.Start,a.End) and [b.Start,b.End) overlap iff
// a.Start < b.End && b.Start < a.End.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Expand widens an interval by before and after.
func Expand(in Interval, before, after time.Duration) Interval {
	return Interval{Start: in.Start.Add(-before), End: in.End.Add(after)}
}

// Slots yields candidate intervals [t, t+duration) for t = open, open+step, ... while
// t+duration <= close. The sequence is finite and each range over it starts again at open.
// A non-positive step falls back to DefaultStep.
func Slots(open, close time.Time, duration, step time.Duration) iter.Seq[Interval] {
	if step <= 0 {
		step = DefaultStep
	}
	return func(yield func(Interval) bool) {
		if duration <= 0 || !close.After(open) {
			return
		}
		for t := open; !t.Add(duration).After(close); t = t.Add(step) {
			if !yield(Interval{Start: t, End: t.Add(duration)}) {
				return
			}
		}
	}
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals and does not start before now.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	var slots []time.Time
	for slot := range Slots(windowStart, windowEnd, duration, step) {
		if slot.Start.Before(now) {
			continue
		}
		if !OverlapsAny(slot, busy) {
			slots = append(slots, slot.Start)
		}
	}
	return slots
}

func OverlapsAny(in Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(in, b) {
			return true
		}
	}
	return false
}
