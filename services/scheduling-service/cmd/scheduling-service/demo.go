package main

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/memstore"
)

// seedDemo loads a small studio into the in-memory store for local runs.
func seedDemo(st *memstore.Store, logger *slog.Logger) {
	biz := st.PutBusiness(model.Business{ID: "demo-studio", Name: "Demo Studio", Timezone: "UTC", Status: model.BusinessLive})
	hours := []model.WeeklyHours{
		{Weekday: 0, Closed: true},
		{Weekday: 6, Open: 10 * 60, Close: 14 * 60},
	}
	for wd := 1; wd <= 5; wd++ {
		hours = append(hours, model.WeeklyHours{Weekday: wd, Open: 9 * 60, Close: 18 * 60})
	}
	st.SetBusinessHours(biz.ID, hours...)

	roomA := st.PutResource(model.Resource{ID: "room-a", BusinessID: biz.ID, Name: "Room A", Type: model.ResourceRoom, Active: true})
	roomB := st.PutResource(model.Resource{ID: "room-b", BusinessID: biz.ID, Name: "Room B", Type: model.ResourceRoom, Active: true})
	policy := st.PutPolicy(model.CancellationPolicy{ID: "flex", BusinessID: biz.ID, Name: "Flexible", FreeCancelHours: 24, RefundPercent: 100})

	price := int64(6000)
	massage := st.PutService(model.Service{
		ID: "massage-60", BusinessID: biz.ID, Name: "Massage (60 min)", Active: true,
		Duration: time.Hour, BufferAfter: 15 * time.Minute,
		BasePrice: &price, Currency: "USD", CancellationPolicyID: policy.ID,
	})
	consult := st.PutService(model.Service{
		ID: "consult-30", BusinessID: biz.ID, Name: "Consultation", Active: true, Duration: 30 * time.Minute,
	})
	st.LinkResources(massage.ID, roomA.ID, roomB.ID)
	st.LinkResources(consult.ID, roomA.ID)

	peakStart, peakEnd := 17*60, 18*60
	if _, err := st.PutPricingRule(model.PricingRule{
		ID: "evening-peak", ServiceID: massage.ID, Name: "Evening peak", Active: true,
		DaysOfWeek: []int{1, 2, 3, 4, 5}, TimeStart: &peakStart, TimeEnd: &peakEnd,
		ModifierType: model.ModifierPercentage, Modifier: 20, Priority: 10,
	}); err != nil {
		logger.Warn("demo pricing rule rejected", "err", err)
	}

	st.PutCustomer(model.Customer{ID: "cust-ada", BusinessID: biz.ID, Name: "Ada", Email: "ada@example.com"})
	st.PutCustomer(model.Customer{ID: "cust-lin", BusinessID: biz.ID, Name: "Lin", Email: "lin@example.com"})
	logger.Info("demo data loaded", "business_id", biz.ID)
}
