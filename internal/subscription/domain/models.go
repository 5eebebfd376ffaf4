package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// Subscription is a purchased entitlement. The *Snapshot fields are copied
// from the plan at purchase time and never rewritten.
type Subscription struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	MemberID snowflake.ID `gorm:"not null;index" json:"member_id"`
	PlanID   snowflake.ID `gorm:"not null" json:"plan_id"`

	PlanNameSnapshot      string          `gorm:"not null" json:"plan_name_snapshot"`
	TotalSessionsSnapshot int             `gorm:"not null" json:"total_sessions_snapshot"`
	TotalAmountSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount_snapshot"`
	SignupFeeSnapshot     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"signup_fee_snapshot"`
	DurationDaysSnapshot  int             `gorm:"not null" json:"duration_days_snapshot"`

	Status         SubscriptionStatus `gorm:"type:varchar(20);not null" json:"status"`
	StartDate      time.Time          `gorm:"not null" json:"start_date"`
	EndDate        time.Time          `gorm:"not null" json:"end_date"`
	PauseStartDate *time.Time         `json:"pause_start_date,omitempty"`
	PauseEndDate   *time.Time         `json:"pause_end_date,omitempty"`
	PauseReason    *string            `json:"pause_reason,omitempty"`
	UpgradedToID   *snowflake.ID      `json:"upgraded_to_id,omitempty"`
	UpgradedFromID *snowflake.ID      `json:"upgraded_from_id,omitempty"`

	UsedSessions  int             `gorm:"not null" json:"used_sessions"`
	PaidAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"paid_amount"`
	CreditApplied decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"credit_applied"`

	Notes     *string           `json:"notes,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// RemainingSessions never goes below zero, even when historical data has
// used_sessions above the snapshot total.
func (s Subscription) RemainingSessions() int {
	remaining := s.TotalSessionsSnapshot - s.UsedSessions
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AmountDue is what the member owes for this contract before payments.
func (s Subscription) AmountDue() decimal.Decimal {
	due := s.TotalAmountSnapshot.Add(s.SignupFeeSnapshot).Sub(s.CreditApplied)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

func (s Subscription) BalanceDue() decimal.Decimal {
	balance := s.AmountDue().Sub(s.PaidAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// UpgradeCredit values the unused sessions at the snapshot price per session,
// rounded to cents.
func (s Subscription) UpgradeCredit() decimal.Decimal {
	remaining := s.TotalSessionsSnapshot - s.UsedSessions
	if remaining <= 0 || s.TotalSessionsSnapshot <= 0 {
		return decimal.Zero
	}
	perSession := s.TotalAmountSnapshot.Div(decimal.NewFromInt(int64(s.TotalSessionsSnapshot)))
	return perSession.Mul(decimal.NewFromInt(int64(remaining))).Round(2)
}

// CompletionPercentage is capped at 100 and rounded to two places.
func (s Subscription) CompletionPercentage() decimal.Decimal {
	if s.TotalSessionsSnapshot <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(s.UsedSessions)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.TotalSessionsSnapshot)))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = decimal.NewFromInt(100)
	}
	return pct.Round(2)
}

// DaysRemaining counts whole or partial days until EndDate.
func (s Subscription) DaysRemaining(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

type SubscriptionDetails struct {
	Subscription
	RemainingSessions    int             `json:"remaining_sessions"`
	BalanceDue           decimal.Decimal `json:"balance_due"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage"`
	DaysRemaining        int             `json:"days_remaining"`
	RefundedAmount       decimal.Decimal `json:"refunded_amount"`
}
