package board

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second

	// refreshPageSize is the server's largest page.
	refreshPageSize = 200
	maxRefreshPages = 25
)

var (
	ErrNotPermitted = errors.New("action not permitted on this board")
	ErrUnknownOrder = errors.New("order is not on this board")
)

// Board is one role dashboard: a snapshot of visible orders kept fresh by
// polling and live events, plus the actions its capabilities allow.
type Board struct {
	caps     Capabilities
	api      API
	interval time.Duration

	mu          sync.RWMutex
	orders      map[string]*order.Order
	lastErr     error
	lastRefresh time.Time
	onChange    func()
}

func New(api API, caps Capabilities) *Board {
	return &Board{
		caps:     caps,
		api:      api,
		interval: DefaultPollInterval,
		orders:   make(map[string]*order.Order),
	}
}

func (b *Board) Capabilities() Capabilities {
	return b.caps
}

// SetInterval changes the poll interval; non-positive values are ignored.
func (b *Board) SetInterval(d time.Duration) {
	if d > 0 {
		b.interval = d
	}
}

// OnChange registers a callback run after the snapshot changes.
func (b *Board) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Board) changed() {
	b.mu.RLock()
	fn := b.onChange
	b.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Refresh replaces the snapshot with the server's view, reading every page.
// On failure the stale snapshot is kept and the error recorded for display.
func (b *Board) Refresh(ctx context.Context) error {
	list, err := b.fetchAll(ctx)
	if err != nil {
		logger.FromCtx(ctx).Warn("board refresh failed",
			zap.String("layer", "board"),
			zap.String("role", b.caps.Role),
			zap.Error(err),
		)
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		b.changed()
		return err
	}

	fresh := make(map[string]*order.Order, len(list))
	for _, o := range list {
		if b.caps.Visible(o) {
			fresh[o.ID] = o.Clone()
		}
	}

	b.mu.Lock()
	b.orders = fresh
	b.lastErr = nil
	b.lastRefresh = time.Now()
	b.mu.Unlock()
	b.changed()
	return nil
}

// fetchAll pages through the list until a short page comes back.
func (b *Board) fetchAll(ctx context.Context) ([]*order.Order, error) {
	filter := order.ListFilter{RestaurantID: b.caps.RestaurantID, Limit: refreshPageSize}
	if !b.caps.showsAll() {
		filter.Statuses = b.caps.VisibleStatuses
	}

	var all []*order.Order
	for filter.Page = 1; filter.Page <= maxRefreshPages; filter.Page++ {
		page, err := b.api.ListOrders(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
	}

	logger.FromCtx(ctx).Warn("board refresh truncated",
		zap.String("layer", "board"),
		zap.Int("orders", len(all)),
	)
	return all, nil
}

// Apply folds a live update into the snapshot: upsert while visible, drop once
// it leaves the visible set. Updates older than the held version are ignored.
func (b *Board) Apply(ev order.Event) {
	o := ev.Order
	if o == nil {
		return
	}

	b.mu.Lock()
	if cur, ok := b.orders[o.ID]; ok && cur.Version > o.Version {
		b.mu.Unlock()
		return
	}
	if b.caps.Visible(o) {
		b.orders[o.ID] = o.Clone()
	} else {
		delete(b.orders, o.ID)
	}
	b.mu.Unlock()
	b.changed()
}

// Orders returns the snapshot, newest first.
func (b *Board) Orders() []*order.Order {
	b.mu.RLock()
	out := make([]*order.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o.Clone())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (b *Board) Get(id string) (*order.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

func (b *Board) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

func (b *Board) LastRefresh() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRefresh
}

// Advance moves an order one step. A terminal order is left alone and no
// request is sent.
func (b *Board) Advance(ctx context.Context, id string) (bool, error) {
	if !b.caps.CanAdvance {
		return false, ErrNotPermitted
	}
	cur, ok := b.Get(id)
	if !ok {
		return false, ErrUnknownOrder
	}

	next, ok := order.Advance(cur.Status, cur.DeliveryType)
	if !ok {
		return false, nil
	}
	if err := b.patchStatus(ctx, cur, next); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Board) Cancel(ctx context.Context, id string) error {
	if !b.caps.CanCancel {
		return ErrNotPermitted
	}
	return b.moveTo(ctx, id, order.StatusCancelled)
}

// SetStatus is the ad-hoc selector: any target order.AllowedTargets offers.
func (b *Board) SetStatus(ctx context.Context, id string, status order.Status) error {
	if !b.caps.CanSetStatus {
		return ErrNotPermitted
	}
	return b.moveTo(ctx, id, status)
}

func (b *Board) moveTo(ctx context.Context, id string, status order.Status) error {
	cur, ok := b.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	if err := order.ValidateTransition(cur.Status, status, cur.DeliveryType); err != nil {
		return err
	}
	return b.patchStatus(ctx, cur, status)
}

func (b *Board) patchStatus(ctx context.Context, cur *order.Order, status order.Status) error {
	version := cur.Version
	updated, err := b.api.PatchOrder(ctx, cur.ID, order.PatchOrderInput{
		Status:  &status,
		Version: &version,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			// Someone else moved it first; pick up their version.
			_ = b.Refresh(ctx)
		}
		return err
	}
	b.Apply(order.Event{Kind: order.EventStatusChanged, Order: updated, PreviousStatus: cur.Status})
	return nil
}

// Run refreshes immediately and then on every tick, independent of the live
// feed, and applies live events as they arrive. events may be nil.
func (b *Board) Run(ctx context.Context, events <-chan order.Event) {
	_ = b.Refresh(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.Refresh(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			b.Apply(ev)
		}
	}
}
