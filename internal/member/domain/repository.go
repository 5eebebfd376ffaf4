package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	// PromoteTrial flips a trial member to full/active. It reports false when
	// the member was no longer a trial member at write time.
	PromoteTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
