package model

import "time"

type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusNoShow         BookingStatus = "no_show"
	StatusExpired        BookingStatus = "expired"
)

// HoldingStatuses occupy a resource and take part in overlap checks.
var HoldingStatuses = []BookingStatus{StatusPending, StatusPendingPayment, StatusConfirmed}

func (s BookingStatus) Holding() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusConfirmed:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	return s.Holding() || s.Terminal()
}

type Booking struct {
	ID             string
	BusinessID     string
	ServiceID      string
	ResourceID     string
	CustomerID     string
	Start          time.Time
	End            time.Time
	Status         BookingStatus
	PriceSnapshot  *PriceSnapshot
	PolicySnapshot *PolicySnapshot
	Metadata       map[string]string
	Notes          string
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PriceSnapshot is the quote captured at creation. It never changes afterwards.
type PriceSnapshot struct {
	BasePrice     int64          `json:"base_price"`
	FinalPrice    int64          `json:"final_price"`
	TotalModifier int64          `json:"total_modifier"`
	Currency      string         `json:"currency,omitempty"`
	AppliedRules  []AppliedPrice `json:"applied_rules,omitempty"`
}

type AppliedPrice struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Modifier int64  `json:"modifier"`
}

// PolicySnapshot copies the cancellation policy fields verbatim.
type PolicySnapshot struct {
	PolicyID        string `json:"policy_id"`
	Name            string `json:"name"`
	FreeCancelHours int    `json:"free_cancel_hours"`
	RefundPercent   int    `json:"refund_percent"`
	FeeFixed        int64  `json:"fee_fixed"`
}

type BookingHistory struct {
	ID        int64
	BookingID string
	Field     string
	OldValue  string
	NewValue  string
	Actor     string
	Reason    string
	CreatedAt time.Time
}
