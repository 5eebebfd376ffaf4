package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/plan/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

type Catalog struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewCatalog(p Params) *Catalog {
	return &Catalog{db: p.DB, repo: p.Repo}
}

func (c *Catalog) GetPlanByID(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	if id == 0 {
		return nil, nil
	}
	return c.repo.FindByID(ctx, c.db, id)
}
