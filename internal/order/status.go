package order

import (
	"github.com/mvolkov/web_shop/internal/models"
)

// PaymentEvent is the outcome of a payment attempt as reported by the
// reconciliation engine.
type PaymentEvent string

const (
	PaymentSucceeded PaymentEvent = "succeeded"
	PaymentFailed    PaymentEvent = "failed"
)

// transitions is the full set of legal status edges. Anything not listed
// here is rejected, webhook-driven or not.
var transitions = map[string][]string{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:    {models.OrderStatusShipped, models.OrderStatusCancelled},
}

func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func knownStatus(s string) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusPaid,
		models.OrderStatusShipped, models.OrderStatusCancelled:
		return true
	}
	return false
}

func statusForEvent(event PaymentEvent) (string, bool) {
	switch event {
	case PaymentSucceeded:
		return models.OrderStatusPaid, true
	case PaymentFailed:
		return models.OrderStatusCancelled, true
	}
	return "", false
}
