package calendar

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Source is the read side the schedules need. store.Tx satisfies it.
type Source interface {
	BusinessHours(ctx context.Context, businessID string) ([]model.WeeklyHours, error)
	BusinessHolidays(ctx context.Context, businessID string, from, to time.Time) ([]model.DateOverride, error)
	StaffHours(ctx context.Context, resourceID string) ([]model.WeeklyHours, error)
	StaffExceptions(ctx context.Context, resourceID string, from, to time.Time) ([]model.DateOverride, error)
}

// Schedule resolves opening hours for a bookable scope on a civil date.
type Schedule interface {
	ResolveHours(ctx context.Context, date time.Time) (Hours, error)
}

// ScheduleFor picks the schedule backing a resource. Staff resources follow their own
// working hours and exceptions; rooms, equipment and resource-less queries follow the
// business hours and holidays.
func ScheduleFor(src Source, businessID string, res *model.Resource) Schedule {
	biz := businessSchedule{src: src, businessID: businessID}
	if res != nil && res.Type == model.ResourceStaff {
		return staffSchedule{src: src, resourceID: res.ID, fallback: biz}
	}
	return biz
}

type businessSchedule struct {
	src        Source
	businessID string
}

func (s businessSchedule) ResolveHours(ctx context.Context, date time.Time) (Hours, error) {
	weekly, err := s.src.BusinessHours(ctx, s.businessID)
	if err != nil {
		return Hours{}, err
	}
	date = Date(date)
	holidays, err := s.src.BusinessHolidays(ctx, s.businessID, date, date)
	if err != nil {
		return Hours{}, err
	}
	return Resolve(weekly, holidays, date), nil
}

type staffSchedule struct {
	src        Source
	resourceID string
	fallback   Schedule
}

// ResolveHours uses the staff member's own rows. A staff member with no weekly rows at
// all has not been given a roster yet and follows the business schedule.
func (s staffSchedule) ResolveHours(ctx context.Context, date time.Time) (Hours, error) {
	weekly, err := s.src.StaffHours(ctx, s.resourceID)
	if err != nil {
		return Hours{}, err
	}
	if len(weekly) == 0 {
		return s.fallback.ResolveHours(ctx, date)
	}
	date = Date(date)
	exceptions, err := s.src.StaffExceptions(ctx, s.resourceID, date, date)
	if err != nil {
		return Hours{}, err
	}
	return Resolve(weekly, exceptions, date), nil
}
