package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/utils"

	"go.uber.org/zap"
)

const maxOrderNumberAttempts = 3

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error)
	PatchOrder(ctx context.Context, id string, in PatchOrderInput) (*Order, error)
	// AdvanceOrder moves the order one step along its chain. changed is false when
	// the order was already terminal; nothing is written in that case.
	AdvanceOrder(ctx context.Context, id string, version *int) (o *Order, changed bool, err error)
	CancelOrder(ctx context.Context, id string, version *int) (*Order, error)
}

type service struct {
	repo      Repository
	notifier  Notifier
	now       func() time.Time
	newNumber func() string
}

func NewService(repo Repository, notifier Notifier) Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &service{
		repo:      repo,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: utils.GenerateOrderNumber,
	}
}

func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.String("restaurant_id", in.RestaurantID),
		zap.String("delivery_type", string(in.DeliveryType)),
	)

	if err := validateCreateInput(in); err != nil {
		log.Info("create order rejected", zap.Error(err))
		return nil, err
	}

	o := newOrderFromInput(in, s.newNumber(), s.now())
	if computed, ok := reconcile(o); !ok {
		log.Warn("declared totals do not match item lines",
			zap.Float64("declared_total", o.TotalAmount),
			zap.Float64("computed_total", computed),
		)
	}

	var err error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		err = s.repo.CreateOrder(ctx, o)
		if !errors.Is(err, errDuplicateOrderNumber) {
			break
		}
		log.Warn("order number collision, regenerating",
			zap.String("order_number", o.OrderNumber),
			zap.Int("attempt", attempt),
		)
		o.OrderNumber = s.newNumber()
	}
	if errors.Is(err, errDuplicateOrderNumber) {
		return nil, persistence("create order", err)
	}
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
	)

	s.notifier.OrderChanged(ctx, Event{Kind: EventCreated, Order: o.Clone()})
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, id string) (*Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrOrderNotFound
	}
	return s.repo.GetOrder(ctx, id)
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, invalid("status", "unknown status "+string(st))
		}
	}
	return s.repo.ListOrders(ctx, filter.normalized())
}

func (s *service) PatchOrder(ctx context.Context, id string, in PatchOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PatchOrder"),
		zap.String("order_id", id),
	)

	if in.empty() {
		return nil, invalid("", "no fields to update")
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.DeliveryType != nil && *in.DeliveryType != current.DeliveryType {
		return nil, invalid("deliveryType", "cannot be changed after creation")
	}
	if err := checkVersion(current, in.Version); err != nil {
		return nil, err
	}

	updated := current.Clone()
	changed := false

	if in.Status != nil && *in.Status != current.Status {
		if !in.Status.Valid() {
			return nil, invalid("status", "unknown status "+string(*in.Status))
		}
		if err := ValidateTransition(current.Status, *in.Status, current.DeliveryType); err != nil {
			log.Info("status change rejected", zap.Error(err))
			return nil, err
		}
		updated.Status = *in.Status
		changed = true
	}

	if in.PaymentStatus != nil && *in.PaymentStatus != current.PaymentStatus {
		if !in.PaymentStatus.Valid() {
			return nil, invalid("paymentStatus", "unknown payment status "+string(*in.PaymentStatus))
		}
		updated.PaymentStatus = *in.PaymentStatus
		changed = true
	}

	if in.EstimatedTime != nil {
		if *in.EstimatedTime < 0 {
			return nil, invalid("estimatedTime", "must not be negative")
		}
		if current.EstimatedTime == nil || *current.EstimatedTime != *in.EstimatedTime {
			v := *in.EstimatedTime
			updated.EstimatedTime = &v
			changed = true
		}
	}

	if in.SpecialInstructions != nil &&
		(current.SpecialInstructions == nil || *current.SpecialInstructions != *in.SpecialInstructions) {
		v := *in.SpecialInstructions
		updated.SpecialInstructions = &v
		changed = true
	}

	if !changed {
		log.Debug("patch is a no-op")
		return current, nil
	}

	updated.UpdatedAt = s.now()
	if err := s.repo.UpdateOrder(ctx, updated, current.Version); err != nil {
		log.Warn("failed to update order", zap.Error(err))
		return nil, err
	}

	ev := Event{Kind: EventUpdated, Order: updated.Clone()}
	if updated.Status != current.Status {
		ev.Kind = EventStatusChanged
		ev.PreviousStatus = current.Status
		log.Info("order status changed",
			zap.String("from", string(current.Status)),
			zap.String("to", string(updated.Status)),
		)
	}
	s.notifier.OrderChanged(ctx, ev)

	return updated, nil
}

func (s *service) AdvanceOrder(ctx context.Context, id string, version *int) (*Order, bool, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := checkVersion(current, version); err != nil {
		return nil, false, err
	}

	next, ok := Advance(current.Status, current.DeliveryType)
	if !ok {
		logger.FromCtx(ctx).Debug("advance on terminal order ignored",
			zap.String("order_id", current.ID),
			zap.String("status", string(current.Status)),
		)
		return current, false, nil
	}

	updated, err := s.moveTo(ctx, current, next)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (s *service) CancelOrder(ctx context.Context, id string, version *int) (*Order, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(current, version); err != nil {
		return nil, err
	}
	if err := ValidateTransition(current.Status, StatusCancelled, current.DeliveryType); err != nil {
		return nil, err
	}
	return s.moveTo(ctx, current, StatusCancelled)
}

func (s *service) moveTo(ctx context.Context, current *Order, to Status) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("order_id", current.ID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
	)

	updated := current.Clone()
	updated.Status = to
	updated.UpdatedAt = s.now()

	if err := s.repo.UpdateOrder(ctx, updated, current.Version); err != nil {
		log.Warn("failed to move order", zap.Error(err))
		return nil, err
	}

	log.Info("order status changed")
	s.notifier.OrderChanged(ctx, Event{
		Kind:           EventStatusChanged,
		Order:          updated.Clone(),
		PreviousStatus: current.Status,
	})
	return updated, nil
}

func checkVersion(current *Order, version *int) error {
	if version == nil || *version == current.Version {
		return nil
	}
	return &ConflictError{OrderID: current.ID, Expected: *version, Actual: current.Version}
}
