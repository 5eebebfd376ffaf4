package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/cache"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/internal/events"
	"github.com/smallbiznis/studioledger/internal/member"
	"github.com/smallbiznis/studioledger/internal/migration"
	"github.com/smallbiznis/studioledger/internal/observability"
	"github.com/smallbiznis/studioledger/internal/payment"
	"github.com/smallbiznis/studioledger/internal/plan"
	"github.com/smallbiznis/studioledger/internal/providers"
	"github.com/smallbiznis/studioledger/internal/ratelimit"
	"github.com/smallbiznis/studioledger/internal/seed"
	"github.com/smallbiznis/studioledger/internal/server"
	"github.com/smallbiznis/studioledger/internal/subscription"
	"github.com/smallbiznis/studioledger/internal/transaction"
	"github.com/smallbiznis/studioledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,
		cache.Module,
		events.Module,
		providers.Module,
		ratelimit.Module,

		// Functional Domains
		plan.Module,
		member.Module,
		payment.Module,
		subscription.Module,
		transaction.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
