package booking

import "github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"

var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusPending:        {model.StatusPendingPayment, model.StatusConfirmed, model.StatusCancelled},
	model.StatusPendingPayment: {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:      {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
}

// CanTransition reports whether from -> to is in the lifecycle table. Terminal states
// have no outgoing transitions.
func CanTransition(from, to model.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
