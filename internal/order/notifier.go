package order

import "context"

type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
	EventUpdated       EventKind = "updated"
)

type Event struct {
	Kind           EventKind `json:"kind"`
	Order          *Order    `json:"order"`
	PreviousStatus Status    `json:"previousStatus,omitempty"`
}

// Notifier receives every successful order mutation. Implementations are best effort:
// they must not block the caller on slow consumers and have no way to fail the write.
type Notifier interface {
	OrderChanged(ctx context.Context, ev Event)
}

type MultiNotifier []Notifier

func (m MultiNotifier) OrderChanged(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.OrderChanged(ctx, ev)
		}
	}
}

type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) OrderChanged(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nopNotifier struct{}

func (nopNotifier) OrderChanged(context.Context, Event) {}
