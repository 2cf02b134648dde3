package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher relays order events to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	acks     <-chan amqp.Confirmation // confirms for every publish, in tag order
	exchange string
	now      func() time.Time

	mu sync.Mutex // serializes publish + confirm
}

// DialAMQP connects, declares the topic exchange and enables publisher confirms.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 16))

	p := newAMQPPublisher(ch, exchange)
	p.conn = conn
	p.acks = acks
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, now: time.Now}
}

// Publish sends one event and waits for the broker confirm when confirms are on.
func (p *AMQPPublisher) Publish(ctx context.Context, ev order.Event) error {
	now := p.now()
	body, err := encode(ev, now)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// The tag is consumed even when the publish below fails.
	tag := p.ch.GetNextPublishSeqNo()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ev.Order.ID + ":" + fmt.Sprint(ev.Order.Version),
		Timestamp:    now,
		Headers:      amqp.Table{"restaurant_id": ev.Order.RestaurantID},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKey(ev), err)
	}

	if p.acks == nil {
		return nil
	}
	return p.awaitConfirm(ctx, tag)
}

// awaitConfirm waits for the confirm of tag. Confirms for earlier tags belong
// to publishes that gave up waiting and are discarded.
func (p *AMQPPublisher) awaitConfirm(ctx context.Context, tag uint64) error {
	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return ErrConfirmsClosed
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if conf.Ack {
				return nil
			}
			return ErrPublishNacked
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OrderChanged makes the publisher an order.Notifier. Failures are logged only.
func (p *AMQPPublisher) OrderChanged(ctx context.Context, ev order.Event) {
	if err := p.Publish(ctx, ev); err != nil {
		logger.FromCtx(ctx).Warn("failed to relay order event",
			zap.String("layer", "events"),
			zap.String("sink", "amqp"),
			zap.String("routing_key", RoutingKey(ev)),
			zap.Error(err),
		)
	}
}

func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
