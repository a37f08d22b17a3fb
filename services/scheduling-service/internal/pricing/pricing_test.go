package pricing

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

func intp(v int) *int { return &v }

func datep(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// 2026-03-02 is a Monday.
var mondayTen = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func weekdayAndMorningRules(priorityA, priorityB int) []model.PricingRule {
	return []model.PricingRule{
		{
			ID: "a", Name: "weekday uplift", Active: true, Priority: priorityA,
			DaysOfWeek:   []int{1, 2, 3, 4, 5},
			ModifierType: model.ModifierPercentage, Modifier: 20,
		},
		{
			ID: "b", Name: "morning discount", Active: true, Priority: priorityB,
			TimeStart: intp(9 * 60), TimeEnd: intp(12 * 60),
			ModifierType: model.ModifierFixed, Modifier: -100,
		},
	}
}

func TestEvaluateAccumulatesRegardlessOfPriority(t *testing.T) {
	for _, prio := range [][2]int{{10, 1}, {1, 10}, {5, 5}} {
		q := Evaluate(weekdayAndMorningRules(prio[0], prio[1]), 1000, mondayTen)
		if q.FinalPrice != 1100 || q.TotalModifier != 100 || len(q.AppliedRules) != 2 {
			t.Fatalf("priorities %v: final=%d modifier=%d rules=%d", prio, q.FinalPrice, q.TotalModifier, len(q.AppliedRules))
		}
	}

	q := Evaluate(weekdayAndMorningRules(1, 10), 1000, mondayTen)
	if q.AppliedRules[0].RuleID != "b" {
		t.Fatalf("higher priority first, got %q", q.AppliedRules[0].RuleID)
	}
	if q.AppliedRules[0].Modifier != -100 || q.AppliedRules[1].Modifier != 200 {
		t.Fatalf("modifiers: %d, %d", q.AppliedRules[0].Modifier, q.AppliedRules[1].Modifier)
	}
}

func TestEvaluateConditions(t *testing.T) {
	rules := weekdayAndMorningRules(1, 1)

	// Monday 12:00 is outside the half-open morning window.
	if got := Evaluate(rules, 1000, mondayTen.Add(2*time.Hour)).FinalPrice; got != 1200 {
		t.Fatalf("monday noon: %d", got)
	}
	// Sunday 10:00: only the morning discount.
	if got := Evaluate(rules, 1000, mondayTen.AddDate(0, 0, -1)).FinalPrice; got != 900 {
		t.Fatalf("sunday morning: %d", got)
	}

	seasonal := model.PricingRule{
		ID: "s", Active: true, ModifierType: model.ModifierFixed, Modifier: 50,
		DateStart: datep(2026, 3, 1), DateEnd: datep(2026, 3, 2),
	}
	late := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)
	if got := Evaluate([]model.PricingRule{seasonal}, 1000, late).FinalPrice; got != 1050 {
		t.Fatalf("end date inclusive: %d", got)
	}
	if got := Evaluate([]model.PricingRule{seasonal}, 1000, late.Add(time.Minute)).FinalPrice; got != 1000 {
		t.Fatalf("after end date: %d", got)
	}

	seasonal.Active = false
	if got := Evaluate([]model.PricingRule{seasonal}, 1000, late).AppliedRules; len(got) != 0 {
		t.Fatalf("inactive rule applied: %+v", got)
	}
}

func TestEvaluateFloorsAndClamps(t *testing.T) {
	pct := model.PricingRule{ID: "p", Active: true, ModifierType: model.ModifierPercentage, Modifier: -15}
	q := Evaluate([]model.PricingRule{pct}, 999, mondayTen)
	// floor(999 * -15 / 100) = floor(-149.85) = -150
	if q.TotalModifier != -150 || q.FinalPrice != 849 {
		t.Fatalf("negative percentage: modifier=%d final=%d", q.TotalModifier, q.FinalPrice)
	}

	pct.Modifier = 15
	if got := Evaluate([]model.PricingRule{pct}, 999, mondayTen).TotalModifier; got != 149 {
		t.Fatalf("positive percentage: %d", got)
	}

	huge := model.PricingRule{ID: "h", Active: true, ModifierType: model.ModifierFixed, Modifier: -5000}
	if got := Evaluate([]model.PricingRule{huge}, 1000, mondayTen).FinalPrice; got != 0 {
		t.Fatalf("price below zero: %d", got)
	}
}

func TestValidateRule(t *testing.T) {
	ok := model.PricingRule{ModifierType: model.ModifierFixed, TimeStart: intp(540), TimeEnd: intp(720)}
	if err := ValidateRule(ok); err != nil {
		t.Fatalf("valid rule: %v", err)
	}

	bad := []model.PricingRule{
		{ModifierType: "bogus"},
		{ModifierType: model.ModifierFixed, TimeStart: intp(720), TimeEnd: intp(540)},
		{ModifierType: model.ModifierFixed, TimeStart: intp(540)},
		{ModifierType: model.ModifierFixed, DaysOfWeek: []int{7}},
		{ModifierType: model.ModifierFixed, DateStart: datep(2026, 3, 2), DateEnd: datep(2026, 3, 1)},
		{ModifierType: model.ModifierPercentage, Modifier: -101},
	}
	for i, r := range bad {
		if err := ValidateRule(r); !apperr.IsBadRequest(err) {
			t.Fatalf("case %d: expected bad request, got %v", i, err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	snap := Evaluate(weekdayAndMorningRules(2, 1), 1000, mondayTen).Snapshot("usd")
	if snap.FinalPrice != 1100 || snap.Currency != "usd" {
		t.Fatalf("snapshot: %+v", snap)
	}
	if len(snap.AppliedRules) != 2 || snap.AppliedRules[0].Type != "percentage" {
		t.Fatalf("applied rules: %+v", snap.AppliedRules)
	}
}
