package model

import "time"

type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "active"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistConverted WaitlistStatus = "converted"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

func (s WaitlistStatus) Open() bool {
	return s == WaitlistActive || s == WaitlistNotified
}

type WaitlistPriority string

const (
	PriorityVIP    WaitlistPriority = "vip"
	PriorityHigh   WaitlistPriority = "high"
	PriorityNormal WaitlistPriority = "normal"
	PriorityLow    WaitlistPriority = "low"
)

// Rank orders priorities for dequeue; lower ranks are served first.
func (p WaitlistPriority) Rank() int {
	switch p {
	case PriorityVIP:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func (p WaitlistPriority) Valid() bool {
	return p.Rank() < 4
}

type WaitlistEntry struct {
	ID                 string
	BusinessID         string
	ServiceID          string
	CustomerID         string
	PreferredDate      *time.Time
	PreferredStart     *int
	PreferredEnd       *int
	Status             WaitlistStatus
	Priority           WaitlistPriority
	NotificationCount  int
	NotifiedAt         *time.Time
	ResponseDeadline   time.Time
	ConvertedBookingID string
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
