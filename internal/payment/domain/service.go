package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecordPaymentRequest struct {
	SubscriptionID  string          `json:"subscription_id" validate:"required,snowflake"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethod   string          `json:"payment_method" validate:"required,payment_method"`
	PaymentDate     *time.Time      `json:"payment_date,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty" validate:"max=100"`
	Notes           string          `json:"notes,omitempty" validate:"max=500"`
}

type Receipt struct {
	Filename string
	Body     io.Reader
}

type Service interface {
	// WithTx returns a Service whose reads and writes run on tx. Events and
	// metrics are left to the owner of tx.
	WithTx(tx *gorm.DB) Service

	RecordPayment(ctx context.Context, req RecordPaymentRequest) (PaymentRecord, error)
	Reconcile(ctx context.Context, subscriptionID snowflake.ID) (decimal.Decimal, error)
	Get(ctx context.Context, id string) (PaymentRecord, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]PaymentRecord, error)
	RefundedTotal(ctx context.Context, subscriptionID snowflake.ID) (decimal.Decimal, error)
	Receipt(ctx context.Context, id string) (Receipt, error)
}

var (
	ErrPaymentNotFound         = errors.New("payment_not_found")
	ErrRefundExceedsRefundable = errors.New("refund_exceeds_refundable")
	ErrCannotRefundARefund     = errors.New("cannot_refund_a_refund")
)
