package events

import (
	"context"
	"fmt"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaPublisher relays order events to one topic, keyed by order id so a
// single order's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = publishTimeout
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to start Kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, topic), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev order.Event) error {
	body, err := encode(ev, p.now())
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Order.ID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(ev.Kind)},
			{Key: []byte("restaurant_id"), Value: []byte(ev.Order.RestaurantID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send to topic %q: %w", p.topic, err)
	}

	logger.FromCtx(ctx).Debug("order event relayed",
		zap.String("layer", "events"),
		zap.String("sink", "kafka"),
		zap.String("order_id", ev.Order.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// OrderChanged makes the publisher an order.Notifier. Failures are logged only.
func (p *KafkaPublisher) OrderChanged(ctx context.Context, ev order.Event) {
	if err := p.Publish(ctx, ev); err != nil {
		logger.FromCtx(ctx).Warn("failed to relay order event",
			zap.String("layer", "events"),
			zap.String("sink", "kafka"),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
