package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository writes that change status are guarded: they report false when
// the row was not in the expected prior state.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListSubscriptionFilter, page pagination.Pagination) ([]*Subscription, error)

	ConsumeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	Pause(ctx context.Context, db *gorm.DB, id snowflake.ID, reason *string, now time.Time) (bool, error)
	Resume(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// MarkUpgraded also requires used_sessions to still equal expectedUsed, so
	// the credit computed from it is still valid.
	MarkUpgraded(ctx context.Context, db *gorm.DB, id, upgradedToID snowflake.ID, expectedUsed int, now time.Time) (bool, error)
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	UpdatePaidAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, paid decimal.Decimal, now time.Time) error
}
