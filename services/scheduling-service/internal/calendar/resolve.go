// Package calendar answers whether a business or a staff member works on a given date.
package calendar

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

type Hours struct {
	Closed bool
	Open   Clock
	Close  Clock
}

func ClosedHours() Hours {
	return Hours{Closed: true}
}

// Window places the hours on a civil date in loc. ok is false when closed.
func (h Hours) Window(date time.Time, loc *time.Location) (start, end time.Time, ok bool) {
	if h.Closed || h.Close <= h.Open {
		return time.Time{}, time.Time{}, false
	}
	return At(date, h.Open, loc), At(date, h.Close, loc), true
}

// Resolve merges recurring weekly rows with date overrides for one civil date.
//
// Precedence: an override marked not working closes the day; an override marked
// working with its own hours replaces the weekly row; otherwise the weekly row for the
// weekday applies, and a closed or missing row means closed.
func Resolve(weekly []model.WeeklyHours, overrides []model.DateOverride, date time.Time) Hours {
	date = Date(date)
	for _, o := range overrides {
		if !Date(o.Date).Equal(date) {
			continue
		}
		if !o.Working {
			return ClosedHours()
		}
		if o.Open != nil && o.Close != nil {
			return hours(Clock(*o.Open), Clock(*o.Close))
		}
	}

	weekday := int(date.Weekday())
	for _, w := range weekly {
		if w.Weekday != weekday {
			continue
		}
		if w.Closed {
			return ClosedHours()
		}
		return hours(Clock(w.Open), Clock(w.Close))
	}
	return ClosedHours()
}

func hours(open, close Clock) Hours {
	if !open.Valid() || !close.Valid() || close <= open {
		return ClosedHours()
	}
	return Hours{Open: open, Close: close}
}
