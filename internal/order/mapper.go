package order

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

func validateCreateInput(in CreateOrderInput) error {
	if strings.TrimSpace(in.RestaurantID) == "" {
		return invalid("restaurantId", "is required")
	}
	if !in.DeliveryType.Valid() {
		return invalid("deliveryType", "must be one of dine_in, takeaway, delivery")
	}
	if len(in.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.MenuItemID) == "" {
			return invalid("items.menuItemId", "is required")
		}
		if item.Quantity <= 0 {
			return invalid("items.quantity", "must be greater than zero")
		}
		if item.UnitPrice < 0 || math.IsNaN(item.UnitPrice) {
			return invalid("items.unitPrice", "must not be negative")
		}
	}
	if in.TotalAmount == nil {
		return invalid("totalAmount", "is required")
	}
	if *in.TotalAmount < 0 || math.IsNaN(*in.TotalAmount) {
		return invalid("totalAmount", "must not be negative")
	}
	return nil
}

// newOrderFromInput builds a pending order. Declared totals are kept as sent.
func newOrderFromInput(in CreateOrderInput, number string, now time.Time) *Order {
	o := &Order{
		ID:                  uuid.NewString(),
		OrderNumber:         number,
		RestaurantID:        strings.TrimSpace(in.RestaurantID),
		TableNumber:         in.TableNumber,
		DeliveryAddress:     in.DeliveryAddress,
		CustomerID:          in.CustomerID,
		CustomerName:        in.CustomerName,
		CustomerPhone:       in.CustomerPhone,
		CustomerEmail:       in.CustomerEmail,
		DeliveryType:        in.DeliveryType,
		PaymentMethod:       in.PaymentMethod,
		PaymentStatus:       PaymentPending,
		TotalAmount:         *in.TotalAmount,
		SpecialInstructions: in.SpecialInstructions,
		Status:              StatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = DefaultPaymentMethod
	}

	o.Items = make([]OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		total := float64(item.Quantity) * item.UnitPrice
		if item.TotalPrice != nil {
			total = *item.TotalPrice
		}
		o.Items = append(o.Items, OrderItem{
			ID:              uuid.NewString(),
			OrderID:         o.ID,
			MenuItemID:      strings.TrimSpace(item.MenuItemID),
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			TotalPrice:      total,
			SpecialRequests: item.SpecialRequests,
		})
	}
	return o
}

// reconcile reports the computed line sum and whether it matches the declared totals.
func reconcile(o *Order) (computed float64, ok bool) {
	const epsilon = 0.005
	ok = true
	for _, item := range o.Items {
		line := float64(item.Quantity) * item.UnitPrice
		if math.Abs(line-item.TotalPrice) > epsilon {
			ok = false
		}
		computed += line
	}
	if math.Abs(computed-o.TotalAmount) > epsilon {
		ok = false
	}
	return computed, ok
}
