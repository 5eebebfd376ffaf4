package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateSubscriptionRequest struct {
	MemberID             string          `json:"member_id" validate:"required,snowflake"`
	PlanID               string          `json:"plan_id" validate:"required,snowflake"`
	StartDate            *time.Time      `json:"start_date,omitempty"`
	InitialPaymentAmount decimal.Decimal `json:"initial_payment_amount" validate:"gte=0"`
	PaymentMethod        string          `json:"payment_method,omitempty" validate:"omitempty,payment_method"`
	Notes                string          `json:"notes,omitempty" validate:"max=500"`
}

type PauseSubscriptionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=200"`
}

type UpgradeSubscriptionRequest struct {
	CurrentSubscriptionID string          `json:"current_subscription_id" validate:"required,snowflake"`
	NewPlanID             string          `json:"new_plan_id" validate:"required,snowflake"`
	CreditAmount          decimal.Decimal `json:"credit_amount" validate:"gte=0"`
	EffectiveDate         *time.Time      `json:"effective_date,omitempty"`
	PaymentMethod         string          `json:"payment_method,omitempty" validate:"omitempty,payment_method"`
}

type ListSubscriptionRequest struct {
	MemberID  string
	Status    string
	PageToken string
	PageSize  int
}

type ListSubscriptionFilter struct {
	MemberID snowflake.ID
	Status   SubscriptionStatus
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	// WithTx binds the ledger to a caller transaction. Member promotion,
	// events and metrics are then left to the caller.
	WithTx(tx *gorm.DB) Service

	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	ConsumeSession(ctx context.Context, id string) (Subscription, error)
	Pause(ctx context.Context, id string, req PauseSubscriptionRequest) (Subscription, error)
	Resume(ctx context.Context, id string) (Subscription, error)
	CalculateUpgradeCredit(ctx context.Context, id string) (decimal.Decimal, error)
	Upgrade(ctx context.Context, req UpgradeSubscriptionRequest) (Subscription, error)
	GetWithDetails(ctx context.Context, id string) (SubscriptionDetails, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInactiveSubscription = errors.New("inactive_subscription")
	ErrNoSessionsRemaining  = errors.New("no_sessions_remaining")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrStateConflict        = errors.New("state_conflict")
	ErrCreditMismatch       = errors.New("credit_mismatch")
)
