package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/smallbiznis/studioledger/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func TestKafkaPublisherSendsEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, testProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var evt Event
		if err := json.Unmarshal(value, &evt); err != nil {
			return err
		}
		if evt.Type != SubscriptionExpired {
			return errors.New("unexpected event type " + string(evt.Type))
		}
		if evt.SubscriptionID != "77" || evt.CorrelationID != "cid-9" {
			return errors.New("missing identifiers")
		}
		return nil
	})

	pub := NewKafkaPublisher(producer, "studioledger.events", zap.NewNop())
	ctx := correlation.ContextWithCorrelationID(context.Background(), "cid-9")
	evt := New(ctx, SubscriptionExpired, 77, 5, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), map[string]any{"used_sessions": 10})

	require.NoError(t, pub.Publish(ctx, evt))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherWrapsSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, testProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisher(producer, "studioledger.events", zap.NewNop())
	err := pub.Publish(context.Background(), New(context.Background(), PaymentRecorded, 1, 0, time.Now(), nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestEmitSwallowsErrors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, testProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	pub := NewKafkaPublisher(producer, "t", zap.NewNop())

	assert.NotPanics(t, func() {
		Emit(context.Background(), pub, zap.NewNop(), New(context.Background(), PaymentRefunded, 1, 2, time.Now(), nil))
		Emit(context.Background(), nil, zap.NewNop(), Event{})
	})
	require.NoError(t, pub.Close())
}

func TestNewOmitsZeroIdentifiers(t *testing.T) {
	evt := New(context.Background(), PaymentRecorded, 0, 0, time.Now(), nil)

	assert.Empty(t, evt.SubscriptionID)
	assert.Empty(t, evt.MemberID)
	assert.Len(t, evt.ID, 26)
}
