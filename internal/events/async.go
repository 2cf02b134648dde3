package events

import (
	"context"
	"sync"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	"go.uber.org/zap"
)

type queued struct {
	ctx context.Context
	ev  order.Event
}

// Async hands events to a background worker so a slow broker never delays the
// HTTP request that caused the event. Events are dropped when the queue is full.
type Async struct {
	next  order.Notifier
	queue chan queued

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(next order.Notifier, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	return &Async{
		next:  next,
		queue: make(chan queued, buffer),
		done:  make(chan struct{}),
	}
}

func (a *Async) OrderChanged(ctx context.Context, ev order.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		logger.FromCtx(ctx).Warn("event relay queue full, dropping event",
			zap.String("layer", "events"),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

// Run delivers queued events until Close is called and the queue is drained.
func (a *Async) Run() {
	defer close(a.done)
	for q := range a.queue {
		a.next.OrderChanged(q.ctx, q.ev)
	}
}

// Close stops accepting events and waits for Run to drain the queue or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
