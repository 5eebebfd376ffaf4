package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.Named("events.kafka"),
	}
}

// Publish sends evt keyed by subscription id so events for one subscription
// stay ordered within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := evt.SubscriptionID
	if key == "" {
		key = evt.ID
	}

	headers := []sarama.RecordHeader{{Key: []byte("event_type"), Value: []byte(evt.Type)}}
	for k, v := range correlation.Metadata(ctx) {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: evt.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	p.log.Debug("event published",
		zap.String("event_type", string(evt.Type)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func producerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	return cfg
}

// NewPublisher returns a kafka publisher when brokers are configured and a
// noop publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not configured, events disabled")
		return NewNoopPublisher(), nil
	}

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, producerConfig(cfg.Kafka.ClientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	pub := NewKafkaPublisher(producer, cfg.Kafka.Topic, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)
