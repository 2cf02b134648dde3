package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/metrics"
	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	msgs    []ServerMessage
	failErr error
	closed  bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg ServerMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Messages() []ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ServerMessage(nil), f.msgs...)
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testOrder(restaurantID, customerID string) *order.Order {
	o := &order.Order{ID: "o-1", RestaurantID: restaurantID, Status: order.StatusConfirmed}
	if customerID != "" {
		o.CustomerID = utils.StrPtr(customerID)
	}
	return o
}

func TestScopeMatches(t *testing.T) {
	o := testOrder("rest-1", "cust-1")

	assert.True(t, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}.Matches(o))
	assert.False(t, Scope{Role: RoleRestaurant, RestaurantID: "rest-2"}.Matches(o))
	assert.False(t, Scope{Role: RoleRestaurant}.Matches(o))

	assert.True(t, Scope{Role: RoleCustomer, CustomerID: "cust-1"}.Matches(o))
	assert.True(t, Scope{Role: RoleCustomer, CustomerID: "cust-1", RestaurantID: "rest-1"}.Matches(o))
	assert.False(t, Scope{Role: RoleCustomer, CustomerID: "cust-1", RestaurantID: "rest-9"}.Matches(o))
	assert.False(t, Scope{Role: RoleCustomer, CustomerID: "cust-2"}.Matches(o))
	assert.False(t, Scope{Role: RoleCustomer, CustomerID: "cust-1"}.Matches(testOrder("rest-1", "")))

	assert.False(t, Scope{Role: "spectator", RestaurantID: "rest-1"}.Matches(o))
	assert.False(t, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}.Matches(nil))
}

func TestBroadcast_SameScopeBothReceiveOthersNothing(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()

	kitchen := newFakeConn("kitchen")
	vendor := newFakeConn("vendor")
	otherRestaurant := newFakeConn("other")
	customer := newFakeConn("customer")
	otherCustomer := newFakeConn("other-customer")

	require.NoError(t, b.Register(kitchen, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}))
	require.NoError(t, b.Register(vendor, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}))
	require.NoError(t, b.Register(otherRestaurant, Scope{Role: RoleRestaurant, RestaurantID: "rest-2"}))
	require.NoError(t, b.Register(customer, Scope{Role: RoleCustomer, CustomerID: "cust-1"}))
	require.NoError(t, b.Register(otherCustomer, Scope{Role: RoleCustomer, CustomerID: "cust-2"}))

	n := b.Broadcast(ctx, order.Event{Kind: order.EventStatusChanged, Order: testOrder("rest-1", "cust-1")})
	assert.Equal(t, 3, n)

	for _, c := range []*fakeConn{kitchen, vendor} {
		msgs := c.Messages()
		require.Len(t, msgs, 1, c.id)
		assert.Equal(t, TypeOrderUpdate, msgs[0].Type)
		assert.Equal(t, "o-1", msgs[0].Data.ID)
	}

	msgs := customer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeOrderStatusUpdate, msgs[0].Type)

	assert.Empty(t, otherRestaurant.Messages())
	assert.Empty(t, otherCustomer.Messages())
}

func TestBroadcast_FailingConnectionDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.ReplaceGlobal(zap.New(core))
	defer restore()

	m := metrics.New()
	b := NewBroadcaster(m)
	ctx := context.Background()
	scope := Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}

	healthy := newFakeConn("healthy")
	broken := newFakeConn("broken")
	broken.failErr = ErrSendBufferFull
	require.NoError(t, b.Register(healthy, scope))
	require.NoError(t, b.Register(broken, scope))

	n := b.Broadcast(ctx, order.Event{Kind: order.EventUpdated, Order: testOrder("rest-1", "")})

	assert.Equal(t, 1, n)
	assert.Len(t, healthy.Messages(), 1)
	assert.True(t, broken.Closed())
	assert.False(t, healthy.Closed())
	assert.Equal(t, 1, b.Len())

	entries := logs.FilterMessage("dropping realtime connection").All()
	require.Len(t, entries, 1)

	// the dropped connection gets nothing further
	b.Broadcast(ctx, order.Event{Kind: order.EventUpdated, Order: testOrder("rest-1", "")})
	assert.Len(t, healthy.Messages(), 2)
	assert.Equal(t, 1, b.Len())
}

func TestDeliveryError(t *testing.T) {
	err := &DeliveryError{ConnID: "c-1", Err: ErrConnClosed}
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.Contains(t, err.Error(), "c-1")

	var de *DeliveryError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &de))
}

func TestRegister_ReplacesScope(t *testing.T) {
	b := NewBroadcaster(nil)
	c := newFakeConn("c")

	require.NoError(t, b.Register(c, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}))
	require.NoError(t, b.Register(c, Scope{Role: RoleRestaurant, RestaurantID: "rest-2"}))
	assert.Equal(t, 1, b.Len())

	b.Broadcast(context.Background(), order.Event{Order: testOrder("rest-1", "")})
	assert.Empty(t, c.Messages())

	b.Broadcast(context.Background(), order.Event{Order: testOrder("rest-2", "")})
	assert.Len(t, c.Messages(), 1)
}

func TestUnregisterAndClose(t *testing.T) {
	b := NewBroadcaster(nil)
	a, c := newFakeConn("a"), newFakeConn("c")
	scope := Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}
	require.NoError(t, b.Register(a, scope))
	require.NoError(t, b.Register(c, scope))

	assert.True(t, b.Unregister(a))
	assert.False(t, b.Unregister(a))
	assert.Equal(t, 1, b.Len())

	b.Close()
	assert.True(t, c.Closed())
	assert.Equal(t, 0, b.Len())
	assert.ErrorIs(t, b.Register(a, scope), ErrBroadcasterClosed)
}

func TestBroadcast_NilOrder(t *testing.T) {
	b := NewBroadcaster(nil)
	c := newFakeConn("c")
	require.NoError(t, b.Register(c, Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}))

	assert.Equal(t, 0, b.Broadcast(context.Background(), order.Event{}))
	assert.Empty(t, c.Messages())
}

func TestBroadcaster_IsNotifier(t *testing.T) {
	var n order.Notifier = NewBroadcaster(nil)
	assert.NotPanics(t, func() {
		n.OrderChanged(context.Background(), order.Event{Order: testOrder("rest-1", "")})
	})
}

func TestBroadcast_Concurrent(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()
	scope := Scope{Role: RoleRestaurant, RestaurantID: "rest-1"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c-%d", i))
			_ = b.Register(c, scope)
			if i%2 == 0 {
				b.Unregister(c)
			}
		}(i)
		go func() {
			defer wg.Done()
			b.Broadcast(ctx, order.Event{Order: testOrder("rest-1", "")})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, b.Len())
}
