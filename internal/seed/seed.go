package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) {
		if !cfg.SeedDefaultPlans {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				n, err := EnsureDefaultPlans(ctx, db, node, clk.Now())
				if err != nil {
					return err
				}
				log.Info("plan catalog seeded", zap.Int("inserted", n))
				return nil
			},
		})
	}),
)

type starterPlan struct {
	name           string
	price          string
	sessions       int
	durationMonths *int
	signupFee      string
	collaboration  bool
}

func months(n int) *int { return &n }

var starterCatalog = []starterPlan{
	{name: "Drop-in Class", price: "25", sessions: 1, durationMonths: months(1)},
	{name: "10 Class Pack", price: "200", sessions: 10, durationMonths: months(3), signupFee: "25"},
	{name: "Monthly 20", price: "320", sessions: 20, durationMonths: months(1), signupFee: "25"},
	{name: "Partner Studio Pass", price: "150", sessions: 8, collaboration: true},
}

// EnsureDefaultPlans fills an empty plan catalog with the starter plans.
// It returns the number of plans inserted.
func EnsureDefaultPlans(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	inserted := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&plandomain.Plan{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now = now.UTC()
		for _, p := range starterCatalog {
			fee := decimal.Zero
			if p.signupFee != "" {
				fee = decimal.RequireFromString(p.signupFee)
			}
			plan := plandomain.Plan{
				ID:                  node.Generate(),
				Name:                p.name,
				Price:               decimal.RequireFromString(p.price),
				SessionsCount:       p.sessions,
				DurationMonths:      p.durationMonths,
				SignupFee:           fee,
				IsCollaborationPlan: p.collaboration,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
