package model

import "time"

type BusinessStatus string

const (
	BusinessPending   BusinessStatus = "pending"
	BusinessApproved  BusinessStatus = "approved"
	BusinessLive      BusinessStatus = "live"
	BusinessSuspended BusinessStatus = "suspended"
	BusinessClosed    BusinessStatus = "closed"
)

// Operational reports whether the business may take reservations.
func (s BusinessStatus) Operational() bool {
	return s == BusinessApproved || s == BusinessLive
}

type Business struct {
	ID        string
	Name      string
	Timezone  string
	Status    BusinessStatus
	CreatedAt time.Time
}

// Location returns the business timezone, falling back to UTC for empty or unknown names.
func (b Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WeeklyHours is one recurring row per weekday (0=Sunday). Open and Close are minutes
// since midnight. Used for business hours and staff working hours alike.
type WeeklyHours struct {
	Weekday int
	Closed  bool
	Open    int
	Close   int
}

// DateOverride is a holiday (business) or an exception (staff) for one calendar date.
// Date is midnight UTC of the civil date.
type DateOverride struct {
	Date    time.Time
	Working bool
	Open    *int
	Close   *int
	Reason  string
}

type ResourceType string

const (
	ResourceRoom      ResourceType = "room"
	ResourceStaff     ResourceType = "staff"
	ResourceEquipment ResourceType = "equipment"
)

type Resource struct {
	ID         string
	BusinessID string
	Name       string
	Type       ResourceType
	Capacity   int
	Active     bool
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// Bookable reports whether the resource can take new reservations.
func (r Resource) Bookable() bool {
	return r.Active && r.DeletedAt == nil
}

type Service struct {
	ID                   string
	BusinessID           string
	Name                 string
	Duration             time.Duration
	BufferBefore         time.Duration
	BufferAfter          time.Duration
	BasePrice            *int64
	Currency             string
	CancellationPolicyID string
	Active               bool
	CreatedAt            time.Time
	DeletedAt            *time.Time
}

type CancellationPolicy struct {
	ID              string
	BusinessID      string
	Name            string
	FreeCancelHours int
	RefundPercent   int
	FeeFixed        int64
}

type Customer struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
	CreatedAt  time.Time
	DeletedAt  *time.Time
}
