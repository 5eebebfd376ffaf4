package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/subscription/domain"
	"github.com/smallbiznis/studioledger/pkg/db/option"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, member_id, plan_id, plan_name_snapshot, total_sessions_snapshot,
	total_amount_snapshot, signup_fee_snapshot, duration_days_snapshot, status, start_date, end_date,
	pause_start_date, pause_end_date, pause_reason, upgraded_to_id, upgraded_from_id, used_sessions,
	paid_amount, credit_applied, notes, metadata, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.MemberID,
		s.PlanID,
		s.PlanNameSnapshot,
		s.TotalSessionsSnapshot,
		s.TotalAmountSnapshot,
		s.SignupFeeSnapshot,
		s.DurationDaysSnapshot,
		s.Status,
		s.StartDate,
		s.EndDate,
		s.PauseStartDate,
		s.PauseEndDate,
		s.PauseReason,
		s.UpgradedToID,
		s.UpgradedFromID,
		s.UsedSessions,
		s.PaidAmount,
		s.CreditApplied,
		s.Notes,
		s.Metadata,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListSubscriptionFilter, page pagination.Pagination) ([]*domain.Subscription, error) {
	var items []*domain.Subscription
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})
	if filter.MemberID != 0 {
		stmt = stmt.Where("member_id = ?", filter.MemberID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.Apply(stmt,
		option.ApplyPagination(page),
		option.WithSortBy("id", option.SortDesc),
	)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ConsumeSession increments used_sessions and flips the row to expired in the
// same statement once the snapshot total is reached.
func (r *repo) ConsumeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET used_sessions = used_sessions + 1,
		     status = CASE WHEN used_sessions + 1 >= total_sessions_snapshot THEN ? ELSE status END,
		     updated_at = ?
		 WHERE id = ? AND status = ? AND used_sessions < total_sessions_snapshot`,
		domain.SubscriptionStatusExpired,
		now,
		id,
		domain.SubscriptionStatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Pause(ctx context.Context, db *gorm.DB, id snowflake.ID, reason *string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, pause_start_date = ?, pause_end_date = NULL, pause_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.SubscriptionStatusPaused,
		now,
		reason,
		now,
		id,
		domain.SubscriptionStatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Resume(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, pause_end_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.SubscriptionStatusActive,
		now,
		now,
		id,
		domain.SubscriptionStatusPaused,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkUpgraded(ctx context.Context, db *gorm.DB, id, upgradedToID snowflake.ID, expectedUsed int, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, upgraded_to_id = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND used_sessions = ?`,
		domain.SubscriptionStatusCancelled,
		upgradedToID,
		now,
		id,
		domain.SubscriptionStatusActive,
		expectedUsed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Cancel moves any non-terminal subscription to cancelled.
func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		domain.SubscriptionStatusCancelled,
		now,
		id,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusPaused,
		domain.SubscriptionStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdatePaidAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, paid decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET paid_amount = ?, updated_at = ? WHERE id = ?`,
		paid,
		now,
		id,
	).Error
}
