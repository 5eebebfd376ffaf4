package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Plan is a catalog entry. The ledger only reads plans; catalog edits happen
// elsewhere.
type Plan struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                string          `gorm:"not null" json:"name"`
	Price               decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	SessionsCount       int             `gorm:"not null" json:"sessions_count"`
	DurationMonths      *int            `json:"duration_months,omitempty"`
	SignupFee           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"signup_fee"`
	IsCollaborationPlan bool            `gorm:"not null" json:"is_collaboration_plan"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

var ErrPlanNotFound = errors.New("plan_not_found")

// Reader resolves plans by id. A missing plan yields (nil, nil).
type Reader interface {
	GetPlanByID(ctx context.Context, id snowflake.ID) (*Plan, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
}
