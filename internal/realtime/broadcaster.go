package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/metrics"
	"qrmenu-be/internal/order"

	"go.uber.org/zap"
)

var (
	ErrConnClosed        = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrBroadcasterClosed = errors.New("broadcaster closed")
)

type Role string

const (
	RoleRestaurant Role = "restaurant"
	RoleCustomer   Role = "customer"
)

// Scope is what a connection subscribed to.
type Scope struct {
	Role         Role
	RestaurantID string
	CustomerID   string
}

// Matches reports whether an event about o belongs to this scope.
func (s Scope) Matches(o *order.Order) bool {
	if o == nil {
		return false
	}
	switch s.Role {
	case RoleRestaurant:
		return s.RestaurantID != "" && o.RestaurantID == s.RestaurantID
	case RoleCustomer:
		if s.CustomerID == "" || o.CustomerID == nil || *o.CustomerID != s.CustomerID {
			return false
		}
		return s.RestaurantID == "" || s.RestaurantID == o.RestaurantID
	}
	return false
}

func (s Scope) messageType() string {
	if s.Role == RoleCustomer {
		return TypeOrderStatusUpdate
	}
	return TypeOrderUpdate
}

// Conn is one live subscriber. Send must not block.
type Conn interface {
	ID() string
	Send(msg ServerMessage) error
	Close() error
}

// DeliveryError is a failed send to one connection. It never reaches the writer
// of the order.
type DeliveryError struct {
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type Broadcaster struct {
	mu      sync.Mutex
	conns   map[Conn]Scope
	closed  bool
	metrics *metrics.Metrics
}

func NewBroadcaster(m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		conns:   make(map[Conn]Scope),
		metrics: m,
	}
}

// Register subscribes c to scope. Registering c again replaces its scope.
func (b *Broadcaster) Register(c Conn, scope Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBroadcasterClosed
	}
	if _, exists := b.conns[c]; !exists {
		b.metrics.ConnectionOpened()
	}
	b.conns[c] = scope
	return nil
}

// Unregister removes c and reports whether it was registered.
func (b *Broadcaster) Unregister(c Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.conns[c]; !exists {
		return false
	}
	delete(b.conns, c)
	b.metrics.ConnectionClosed()
	return true
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

type target struct {
	conn  Conn
	scope Scope
}

// Broadcast sends ev to every matching connection and returns how many accepted
// it. A connection that fails is dropped; the others are unaffected.
func (b *Broadcaster) Broadcast(ctx context.Context, ev order.Event) int {
	if ev.Order == nil {
		return 0
	}

	b.mu.Lock()
	targets := make([]target, 0, len(b.conns))
	for c, scope := range b.conns {
		if scope.Matches(ev.Order) {
			targets = append(targets, target{conn: c, scope: scope})
		}
	}
	b.mu.Unlock()

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "realtime"),
		zap.String("order_id", ev.Order.ID),
		zap.String("event", string(ev.Kind)),
	)

	delivered, dropped := 0, 0
	for _, t := range targets {
		err := t.conn.Send(ServerMessage{Type: t.scope.messageType(), Data: ev.Order})
		if err == nil {
			delivered++
			continue
		}

		dErr := &DeliveryError{ConnID: t.conn.ID(), Err: err}
		log.Warn("dropping realtime connection", zap.Error(dErr))
		if b.Unregister(t.conn) {
			_ = t.conn.Close()
		}
		dropped++
	}

	b.metrics.DeliveryResult(delivered, dropped)
	log.Debug("order event broadcast",
		zap.Int("delivered", delivered),
		zap.Int("dropped", dropped),
	)
	return delivered
}

// OrderChanged makes the Broadcaster an order.Notifier.
func (b *Broadcaster) OrderChanged(ctx context.Context, ev order.Event) {
	b.Broadcast(ctx, ev)
}

// Close drops every connection and rejects new registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := make([]Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
		b.metrics.ConnectionClosed()
	}
	b.conns = make(map[Conn]Scope)
	b.closed = true
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
