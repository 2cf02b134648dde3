package order

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps orders in process. Used for STORE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	seq         int64
	orders      map[string]*memOrder
	numbers     map[string]struct{}
	restaurants map[string]string
	menuItems   map[string]MenuItemInfo
}

type memOrder struct {
	seq   int64
	order *Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:      map[string]*memOrder{},
		numbers:     map[string]struct{}{},
		restaurants: map[string]string{},
		menuItems:   map[string]MenuItemInfo{},
	}
}

// AddRestaurant registers a name used to enrich reads.
func (m *MemoryRepository) AddRestaurant(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants[id] = name
}

func (m *MemoryRepository) AddMenuItem(id, name string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menuItems[id] = MenuItemInfo{Name: name, Price: price}
}

func (m *MemoryRepository) CreateOrder(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return persistence("create order", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.numbers[o.OrderNumber]; taken {
		return errDuplicateOrderNumber
	}
	if _, exists := m.orders[o.ID]; exists {
		return persistence("create order", errDuplicateOrderID)
	}

	m.seq++
	m.orders[o.ID] = &memOrder{seq: m.seq, order: o.Clone()}
	m.numbers[o.OrderNumber] = struct{}{}
	return nil
}

func (m *MemoryRepository) GetOrder(ctx context.Context, id string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("get order", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.enrich(stored.order), nil
}

func (m *MemoryRepository) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistence("list orders", err)
	}
	filter = filter.normalized()

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*memOrder, 0, len(m.orders))
	for _, stored := range m.orders {
		if filter.RestaurantID != "" && stored.order.RestaurantID != filter.RestaurantID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, stored.order.Status) {
			continue
		}
		matched = append(matched, stored)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := []*Order{}
	start := filter.offset()
	if start >= len(matched) {
		return out, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, stored := range matched[start:end] {
		out = append(out, m.enrich(stored.order))
	}
	return out, nil
}

func (m *MemoryRepository) UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return persistence("update order", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.order.Version != expectedVersion {
		return &ConflictError{OrderID: o.ID, Expected: expectedVersion, Actual: stored.order.Version}
	}

	next := stored.order.Clone()
	next.Status = o.Status
	next.PaymentStatus = o.PaymentStatus
	next.EstimatedTime = o.EstimatedTime
	next.SpecialInstructions = o.SpecialInstructions
	next.UpdatedAt = o.UpdatedAt
	next.Version = expectedVersion + 1
	stored.order = next

	o.Version = next.Version
	return nil
}

func (m *MemoryRepository) enrich(o *Order) *Order {
	c := o.Clone()
	c.Restaurant.Name = m.restaurants[c.RestaurantID]
	for i := range c.Items {
		c.Items[i].MenuItem = m.menuItems[c.Items[i].MenuItemID]
	}
	if c.Items == nil {
		c.Items = []OrderItem{}
	}
	return c
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
