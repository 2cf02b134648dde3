package events

import (
	"encoding/json"
	"fmt"
	"time"

	"qrmenu-be/internal/order"
)

// Envelope is the JSON body published for every order event.
type Envelope struct {
	Event          order.EventKind `json:"event"`
	OrderID        string          `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	RestaurantID   string          `json:"restaurantId"`
	Status         order.Status    `json:"status"`
	PreviousStatus order.Status    `json:"previousStatus,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Order          *order.Order    `json:"order"`
}

func newEnvelope(ev order.Event, at time.Time) Envelope {
	return Envelope{
		Event:          ev.Kind,
		OrderID:        ev.Order.ID,
		OrderNumber:    ev.Order.OrderNumber,
		RestaurantID:   ev.Order.RestaurantID,
		Status:         ev.Order.Status,
		PreviousStatus: ev.PreviousStatus,
		OccurredAt:     at.UTC(),
		Order:          ev.Order,
	}
}

func encode(ev order.Event, at time.Time) ([]byte, error) {
	if ev.Order == nil {
		return nil, ErrNoOrder
	}
	body, err := json.Marshal(newEnvelope(ev, at))
	if err != nil {
		return nil, fmt.Errorf("encode order event: %w", err)
	}
	return body, nil
}

// RoutingKey is order.<kind>.<status>, e.g. order.status_changed.ready.
func RoutingKey(ev order.Event) string {
	status := order.Status("unknown")
	if ev.Order != nil {
		status = ev.Order.Status
	}
	return fmt.Sprintf("order.%s.%s", ev.Kind, status)
}
