package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/studioledger/internal/config"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	"github.com/smallbiznis/studioledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/studioledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/studioledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	"github.com/smallbiznis/studioledger/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/studioledger/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(RequestMetrics())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	db              *gorm.DB
	log             *zap.Logger
	memberSvc       memberdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	transactionSvc  transactiondomain.Service
	limiter         *ratelimit.APILimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	DB              *gorm.DB
	Log             *zap.Logger
	MemberSvc       memberdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	TransactionSvc  transactiondomain.Service
	Limiter         *ratelimit.APILimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		memberSvc:       p.MemberSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		transactionSvc:  p.TransactionSvc,
		limiter:         p.Limiter,
	}

	svc.engine.GET("/health", svc.Health)
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", RateLimit(s.limiter, s.log))

	// -------- Members --------
	api.POST("/members", s.CreateMember)
	api.GET("/members/:id", s.GetMemberByID)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.ListSubscriptions)
	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/consume", s.ConsumeSession)
	api.POST("/subscriptions/:id/pause", s.PauseSubscription)
	api.POST("/subscriptions/:id/resume", s.ResumeSubscription)
	api.GET("/subscriptions/:id/upgrade-credit", s.GetUpgradeCredit)
	api.POST("/subscriptions/:id/upgrade", s.UpgradeSubscription)
	api.GET("/subscriptions/:id/payments", s.ListSubscriptionPayments)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.GET("/payments/:id/receipt", s.GetPaymentReceipt)
	api.POST("/payments/:id/refund", s.RefundPayment)

	// -------- Atomic operations --------
	api.POST("/transactions/subscriptions", s.CreateSubscriptionWithPayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
