package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	"github.com/smallbiznis/studioledger/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type Type string

const (
	SubscriptionCreated         Type = "subscription.created"
	SubscriptionSessionConsumed Type = "subscription.session_consumed"
	SubscriptionExpired         Type = "subscription.expired"
	SubscriptionPaused          Type = "subscription.paused"
	SubscriptionResumed         Type = "subscription.resumed"
	SubscriptionUpgraded        Type = "subscription.upgraded"
	SubscriptionCancelled       Type = "subscription.cancelled"
	PaymentRecorded             Type = "payment.recorded"
	PaymentRefunded             Type = "payment.refunded"
)

// Event is the envelope published for every committed ledger change.
type Event struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	OccurredAt     time.Time      `json:"occurred_at"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
	MemberID       string         `json:"member_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

func New(ctx context.Context, typ Type, subscriptionID, memberID snowflake.ID, occurredAt time.Time, payload map[string]any) Event {
	evt := Event{
		ID:            ulid.Make().String(),
		Type:          typ,
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlation.ExtractCorrelationID(ctx),
		Payload:       payload,
	}
	if subscriptionID != 0 {
		evt.SubscriptionID = subscriptionID.String()
	}
	if memberID != 0 {
		evt.MemberID = memberID.String()
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Emit publishes evt and logs, rather than returns, any failure. Ledger writes
// are already committed when events are emitted.
func Emit(ctx context.Context, pub Publisher, log *zap.Logger, evt Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		obslogger.WithContext(ctx, log).Warn("event publish failed",
			zap.String("event_type", string(evt.Type)),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
	}
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, Event) error { return nil }
