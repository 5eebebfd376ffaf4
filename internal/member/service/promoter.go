package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/member/domain"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PromoterParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *metrics.Metrics `optional:"true"`
}

// Promoter runs outside the purchase transaction, so its failures cannot roll
// back the subscription that triggered it.
type Promoter struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func NewPromoter(p PromoterParams) domain.Promoter {
	return &Promoter{
		db:      p.DB,
		log:     p.Log.Named("member.promoter"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.ObsMetrics,
	}
}

func (p *Promoter) PromoteIfTrial(ctx context.Context, memberID snowflake.ID) {
	log := obslogger.WithContext(ctx, p.log).With(zap.String("member_id", memberID.String()))

	member, err := p.repo.FindByID(ctx, p.db, memberID)
	if err != nil {
		log.Warn("member promotion lookup failed", zap.Error(err))
		p.metrics.RecordMemberPromotion(ctx, "failed")
		return
	}
	if member == nil {
		log.Warn("member promotion skipped, member not found")
		p.metrics.RecordMemberPromotion(ctx, "failed")
		return
	}
	if member.MemberType != domain.MemberTypeTrial {
		p.metrics.RecordMemberPromotion(ctx, "skipped")
		return
	}

	promoted, err := p.repo.PromoteTrial(ctx, p.db, memberID, p.clock.Now())
	if err != nil {
		log.Warn("member promotion failed", zap.Error(err))
		p.metrics.RecordMemberPromotion(ctx, "failed")
		return
	}
	if !promoted {
		p.metrics.RecordMemberPromotion(ctx, "skipped")
		return
	}

	log.Info("trial member promoted to full")
	p.metrics.RecordMemberPromotion(ctx, "promoted")
}
