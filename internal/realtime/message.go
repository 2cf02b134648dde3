package realtime

import "qrmenu-be/internal/order"

// Client -> server.
const (
	TypeJoinRestaurant = "join-restaurant"
	TypeJoinCustomer   = "join-customer"
)

// Server -> client.
const (
	TypeOrderUpdate       = "order-update"
	TypeOrderStatusUpdate = "order-status-update"
	TypeJoined            = "joined"
	TypeError             = "error"
)

type ClientMessage struct {
	Type         string `json:"type"`
	RestaurantID string `json:"restaurantId,omitempty"`
	CustomerID   string `json:"customerId,omitempty"`
}

type ServerMessage struct {
	Type         string       `json:"type"`
	Data         *order.Order `json:"data,omitempty"`
	Message      string       `json:"message,omitempty"`
	RestaurantID string       `json:"restaurantId,omitempty"`
	CustomerID   string       `json:"customerId,omitempty"`
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: msg}
}
