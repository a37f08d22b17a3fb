package model

import "time"

type ModifierType string

const (
	ModifierPercentage ModifierType = "percentage"
	ModifierFixed      ModifierType = "fixed"
)

// PricingRule adjusts a service's base price when all of its conditions match.
// TimeStart/TimeEnd are minutes since midnight. DateStart/DateEnd are inclusive civil dates.
type PricingRule struct {
	ID           string
	ServiceID    string
	Name         string
	DaysOfWeek   []int
	TimeStart    *int
	TimeEnd      *int
	DateStart    *time.Time
	DateEnd      *time.Time
	ModifierType ModifierType
	Modifier     int64
	Priority     int
	Active       bool
	CreatedAt    time.Time
}
