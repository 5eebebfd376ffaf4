package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *PaymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]PaymentRecord, error)
	CompletedAmounts(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]decimal.Decimal, error)
	RefundAmounts(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]decimal.Decimal, error)

	// UpdateRefundedAmount reports false when refunded_amount no longer equals
	// previous.
	UpdateRefundedAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, previous, next decimal.Decimal) (bool, error)
}
