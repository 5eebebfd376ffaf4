package plan

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studioledger/internal/cache"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/internal/plan/domain"
	"github.com/smallbiznis/studioledger/internal/plan/repository"
	"github.com/smallbiznis/studioledger/internal/plan/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewCatalog),
	fx.Provide(provideReader),
)

func provideReader(catalog *service.Catalog, client *redis.Client, cfg config.Config, log *zap.Logger) domain.Reader {
	return cache.NewPlanReader(catalog, client, cfg.Redis.PlanCacheTTL, log)
}
