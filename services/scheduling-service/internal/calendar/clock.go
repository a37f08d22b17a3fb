package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a time of day in minutes since midnight. 24:00 (1440) is allowed as a close time.
type Clock int

const EndOfDay Clock = 24 * 60

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= EndOfDay
}

// ParseClock parses HH:mm.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return EndOfDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", raw)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the minute of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Date truncates t to its civil date, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return d, nil
}

// At places a civil date and a clock in loc.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).Add(c.Duration())
}
