package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ErrTransactionFailed matches every *Error.
var ErrTransactionFailed = errors.New("transaction_failed")

type Op string

const (
	OpCreateSubscription Op = "create_subscription_with_payment"
	OpRefund             Op = "process_refund"
)

// Error reports a store-level failure of an atomic operation. Business rule
// rejections are returned unwrapped instead.
type Error struct {
	Op     Op
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Op == OpRefund {
		return "refund failed: " + e.Reason
	}
	return "transaction failed: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransactionFailed }

type CreateSubscriptionWithPaymentRequest struct {
	MemberID      string          `json:"member_id" validate:"required,snowflake"`
	PlanID        string          `json:"plan_id" validate:"required,snowflake"`
	PaymentAmount decimal.Decimal `json:"payment_amount" validate:"gt=0"`
	PaymentMethod string          `json:"payment_method" validate:"required,payment_method"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	Notes         string          `json:"notes,omitempty" validate:"max=500"`
}

type CreateSubscriptionWithPaymentResult struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	PaymentID      snowflake.ID `json:"payment_id"`
}

type ProcessRefundRequest struct {
	PaymentID    string          `json:"payment_id" validate:"required,snowflake"`
	RefundAmount decimal.Decimal `json:"refund_amount" validate:"gt=0"`
	RefundReason string          `json:"refund_reason" validate:"max=200"`
	// CancelSubscription defaults to true when omitted.
	CancelSubscription *bool `json:"cancel_subscription,omitempty"`
}

type ProcessRefundResult struct {
	RefundID              snowflake.ID    `json:"refund_id"`
	PaymentID             snowflake.ID    `json:"payment_id"`
	RefundAmount          decimal.Decimal `json:"refund_amount"`
	SubscriptionCancelled bool            `json:"subscription_cancelled"`
}

type Service interface {
	CreateSubscriptionWithPayment(ctx context.Context, req CreateSubscriptionWithPaymentRequest) (CreateSubscriptionWithPaymentResult, error)
	ProcessRefund(ctx context.Context, req ProcessRefundRequest) (ProcessRefundResult, error)
}
