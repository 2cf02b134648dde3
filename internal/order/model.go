package order

import (
	"time"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusServed         Status = "served"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// AllStatuses lists every status in chain order, cancelled last.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusServed,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type DeliveryType string

const (
	DeliveryDineIn   DeliveryType = "dine_in"
	DeliveryTakeaway DeliveryType = "takeaway"
	DeliveryDelivery DeliveryType = "delivery"
)

func (d DeliveryType) Valid() bool {
	switch d {
	case DeliveryDineIn, DeliveryTakeaway, DeliveryDelivery:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

const DefaultPaymentMethod = "cash"

type Order struct {
	ID                  string         `json:"id"`
	OrderNumber         string         `json:"orderNumber"`
	RestaurantID        string         `json:"restaurantId"`
	TableNumber         *string        `json:"tableNumber,omitempty"`
	DeliveryAddress     *string        `json:"deliveryAddress,omitempty"`
	CustomerID          *string        `json:"customerId,omitempty"`
	CustomerName        *string        `json:"customerName,omitempty"`
	CustomerPhone       *string        `json:"customerPhone,omitempty"`
	CustomerEmail       *string        `json:"customerEmail,omitempty"`
	DeliveryType        DeliveryType   `json:"deliveryType"`
	PaymentMethod       string         `json:"paymentMethod"`
	PaymentStatus       PaymentStatus  `json:"paymentStatus"`
	TotalAmount         float64        `json:"totalAmount"`
	SpecialInstructions *string        `json:"specialInstructions,omitempty"`
	EstimatedTime       *int           `json:"estimatedTime,omitempty"`
	Status              Status         `json:"status"`
	Version             int            `json:"version"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	Items               []OrderItem    `json:"items"`
	Restaurant          RestaurantInfo `json:"restaurant"`
}

type RestaurantInfo struct {
	Name string `json:"name"`
}

type OrderItem struct {
	ID              string       `json:"id"`
	OrderID         string       `json:"orderId"`
	MenuItemID      string       `json:"menuItemId"`
	Quantity        int          `json:"quantity"`
	UnitPrice       float64      `json:"unitPrice"`
	TotalPrice      float64      `json:"totalPrice"`
	SpecialRequests *string      `json:"specialRequests,omitempty"`
	MenuItem        MenuItemInfo `json:"menuItem"`
}

type MenuItemInfo struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Clone returns a copy that shares no slices with o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

type CreateOrderInput struct {
	RestaurantID        string            `json:"restaurantId"`
	TableNumber         *string           `json:"tableNumber,omitempty"`
	DeliveryAddress     *string           `json:"deliveryAddress,omitempty"`
	CustomerID          *string           `json:"customerId,omitempty"`
	CustomerName        *string           `json:"customerName,omitempty"`
	CustomerPhone       *string           `json:"customerPhone,omitempty"`
	CustomerEmail       *string           `json:"customerEmail,omitempty"`
	DeliveryType        DeliveryType      `json:"deliveryType"`
	Items               []CreateItemInput `json:"items"`
	TotalAmount         *float64          `json:"totalAmount"`
	PaymentMethod       string            `json:"paymentMethod"`
	SpecialInstructions *string           `json:"specialInstructions,omitempty"`
}

type CreateItemInput struct {
	MenuItemID      string   `json:"menuItemId"`
	Quantity        int      `json:"quantity"`
	UnitPrice       float64  `json:"unitPrice"`
	TotalPrice      *float64 `json:"totalPrice,omitempty"`
	SpecialRequests *string  `json:"specialRequests,omitempty"`
}

type PatchOrderInput struct {
	Status              *Status        `json:"status,omitempty"`
	Version             *int           `json:"version,omitempty"`
	PaymentStatus       *PaymentStatus `json:"paymentStatus,omitempty"`
	EstimatedTime       *int           `json:"estimatedTime,omitempty"`
	SpecialInstructions *string        `json:"specialInstructions,omitempty"`
	DeliveryType        *DeliveryType  `json:"deliveryType,omitempty"`
}

func (in PatchOrderInput) empty() bool {
	return in.Status == nil &&
		in.PaymentStatus == nil &&
		in.EstimatedTime == nil &&
		in.SpecialInstructions == nil &&
		in.DeliveryType == nil
}

type ListFilter struct {
	RestaurantID string
	Statuses     []Status
	Limit        int
	Page         int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}
