package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var fixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testEvent() order.Event {
	return order.Event{
		Kind: order.EventStatusChanged,
		Order: &order.Order{
			ID:           "ord-1",
			OrderNumber:  "ORD-20250314-093000-0001",
			RestaurantID: "rest-1",
			Status:       order.StatusReady,
			Version:      3,
			DeliveryType: order.DeliveryDineIn,
		},
		PreviousStatus: order.StatusPreparing,
	}
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	exchange  string
	err       error
	closed    bool
	attempts  uint64
}

func (f *fakeChannel) GetNextPublishSeqNo() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts + 1
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "order.status_changed.ready", RoutingKey(testEvent()))
	assert.Equal(t, "order.created.unknown", RoutingKey(order.Event{Kind: order.EventCreated}))
}

func TestEncode(t *testing.T) {
	t.Run("Envelope fields", func(t *testing.T) {
		body, err := encode(testEvent(), fixedTime)
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, order.EventStatusChanged, env.Event)
		assert.Equal(t, "ord-1", env.OrderID)
		assert.Equal(t, "rest-1", env.RestaurantID)
		assert.Equal(t, order.StatusReady, env.Status)
		assert.Equal(t, order.StatusPreparing, env.PreviousStatus)
		assert.True(t, fixedTime.Equal(env.OccurredAt))
		require.NotNil(t, env.Order)
		assert.Equal(t, 3, env.Order.Version)
	})

	t.Run("Missing order", func(t *testing.T) {
		_, err := encode(order.Event{Kind: order.EventCreated}, fixedTime)
		assert.ErrorIs(t, err, ErrNoOrder)
	})
}

func TestAMQPPublisher(t *testing.T) {
	t.Run("Publishes to exchange with routing key", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newAMQPPublisher(ch, "orders_topic")
		p.now = func() time.Time { return fixedTime }

		require.NoError(t, p.Publish(context.Background(), testEvent()))

		require.Len(t, ch.published, 1)
		assert.Equal(t, "orders_topic", ch.exchange)
		assert.Equal(t, []string{"order.status_changed.ready"}, ch.keys)
		msg := ch.published[0]
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		assert.Equal(t, "ord-1:3", msg.MessageId)
		assert.Equal(t, "rest-1", msg.Headers["restaurant_id"])
	})

	t.Run("Waits for broker confirm", func(t *testing.T) {
		acks := make(chan amqp.Confirmation, 1)
		p := newAMQPPublisher(&fakeChannel{}, "orders_topic")
		p.acks = acks

		acks <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
		assert.ErrorIs(t, p.Publish(context.Background(), testEvent()), ErrPublishNacked)

		acks <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
		assert.NoError(t, p.Publish(context.Background(), testEvent()))
	})

	t.Run("Late confirm is not taken for the next publish", func(t *testing.T) {
		acks := make(chan amqp.Confirmation, 4)
		p := newAMQPPublisher(&fakeChannel{}, "orders_topic")
		p.acks = acks

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, p.Publish(ctx, testEvent()), context.DeadlineExceeded)

		// Tag 1 arrives after its publisher gave up; tag 2 is a NACK.
		acks <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
		acks <- amqp.Confirmation{DeliveryTag: 2, Ack: false}
		assert.ErrorIs(t, p.Publish(context.Background(), testEvent()), ErrPublishNacked)

		acks <- amqp.Confirmation{DeliveryTag: 3, Ack: true}
		assert.NoError(t, p.Publish(context.Background(), testEvent()))
	})

	t.Run("Failed publish still consumes a tag", func(t *testing.T) {
		acks := make(chan amqp.Confirmation, 1)
		ch := &fakeChannel{err: errors.New("frame too large")}
		p := newAMQPPublisher(ch, "orders_topic")
		p.acks = acks

		assert.Error(t, p.Publish(context.Background(), testEvent()))

		ch.mu.Lock()
		ch.err = nil
		ch.mu.Unlock()
		acks <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
		assert.NoError(t, p.Publish(context.Background(), testEvent()))
	})

	t.Run("Closed confirm channel", func(t *testing.T) {
		acks := make(chan amqp.Confirmation)
		close(acks)
		p := newAMQPPublisher(&fakeChannel{}, "orders_topic")
		p.acks = acks

		assert.ErrorIs(t, p.Publish(context.Background(), testEvent()), ErrConfirmsClosed)
	})

	t.Run("Failure is logged, not returned", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		restore := logger.ReplaceGlobal(zap.New(core))
		defer restore()

		p := newAMQPPublisher(&fakeChannel{err: errors.New("channel closed")}, "orders_topic")
		p.OrderChanged(context.Background(), testEvent())

		entries := logs.FilterMessage("failed to relay order event").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "amqp", entries[0].ContextMap()["sink"])
	})

	t.Run("Close closes the channel", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newAMQPPublisher(ch, "orders_topic")
		require.NoError(t, p.Close())
		assert.True(t, ch.closed)
	})
}

func TestKafkaPublisher(t *testing.T) {
	t.Run("Keys messages by order id", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, NewKafkaConfig())
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != "ord-1" {
				return errors.New("unexpected key " + string(key))
			}
			if msg.Topic != "order-events" {
				return errors.New("unexpected topic " + msg.Topic)
			}
			return nil
		})

		p := newKafkaPublisher(producer, "order-events")
		assert.NoError(t, p.Publish(context.Background(), testEvent()))
		assert.NoError(t, p.Close())
	})

	t.Run("Value is the JSON envelope", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, NewKafkaConfig())
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var env Envelope
			if err := json.Unmarshal(val, &env); err != nil {
				return err
			}
			if env.Status != order.StatusReady {
				return errors.New("unexpected status " + string(env.Status))
			}
			return nil
		})

		p := newKafkaPublisher(producer, "order-events")
		assert.NoError(t, p.Publish(context.Background(), testEvent()))
		assert.NoError(t, p.Close())
	})

	t.Run("Send failure is logged", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		restore := logger.ReplaceGlobal(zap.New(core))
		defer restore()

		producer := mocks.NewSyncProducer(t, NewKafkaConfig())
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		p := newKafkaPublisher(producer, "order-events")
		p.OrderChanged(context.Background(), testEvent())
		assert.NoError(t, p.Close())

		require.Equal(t, 1, logs.FilterMessage("failed to relay order event").Len())
	})
}

func TestAsync(t *testing.T) {
	t.Run("Delivers in order and drains on close", func(t *testing.T) {
		var mu sync.Mutex
		var got []order.EventKind
		next := order.NotifierFunc(func(_ context.Context, ev order.Event) {
			mu.Lock()
			got = append(got, ev.Kind)
			mu.Unlock()
		})

		a := NewAsync(next, 8)
		go a.Run()

		a.OrderChanged(context.Background(), order.Event{Kind: order.EventCreated})
		a.OrderChanged(context.Background(), order.Event{Kind: order.EventStatusChanged})

		require.NoError(t, a.Close(context.Background()))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []order.EventKind{order.EventCreated, order.EventStatusChanged}, got)
	})

	t.Run("Drops when queue is full", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		restore := logger.ReplaceGlobal(zap.New(core))
		defer restore()

		a := NewAsync(order.NotifierFunc(func(context.Context, order.Event) {}), 1)

		a.OrderChanged(context.Background(), order.Event{Kind: order.EventCreated})
		a.OrderChanged(context.Background(), order.Event{Kind: order.EventUpdated})

		assert.Equal(t, 1, logs.FilterMessage("event relay queue full, dropping event").Len())

		go a.Run()
		require.NoError(t, a.Close(context.Background()))
	})

	t.Run("Ignores events after close", func(t *testing.T) {
		calls := 0
		a := NewAsync(order.NotifierFunc(func(context.Context, order.Event) { calls++ }), 4)
		go a.Run()
		require.NoError(t, a.Close(context.Background()))

		a.OrderChanged(context.Background(), order.Event{Kind: order.EventCreated})
		assert.Equal(t, 0, calls)
	})

	t.Run("Close honours context", func(t *testing.T) {
		a := NewAsync(order.NotifierFunc(func(context.Context, order.Event) {}), 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, a.Close(ctx), context.Canceled)
	})
}
