package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/internal/events"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	"github.com/smallbiznis/studioledger/internal/subscription/domain"
	"github.com/smallbiznis/studioledger/internal/validation"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Plans        plandomain.Reader
	PlanRepo     plandomain.Repository
	MemberRepo   memberdomain.Repository
	Payments     paymentdomain.Service
	Promoter     memberdomain.Promoter
	LedgerConfig *config.LedgerConfigHolder
	Publisher    events.Publisher `optional:"true"`
	ObsMetrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	inTx         bool
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	plans        plandomain.Reader
	planRepo     plandomain.Repository
	memberRepo   memberdomain.Repository
	payments     paymentdomain.Service
	promoter     memberdomain.Promoter
	ledgerConfig *config.LedgerConfigHolder
	publisher    events.Publisher
	obsMetrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("subscription.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		plans:        p.Plans,
		planRepo:     p.PlanRepo,
		memberRepo:   p.MemberRepo,
		payments:     p.Payments,
		promoter:     p.Promoter,
		ledgerConfig: p.LedgerConfig,
		publisher:    p.Publisher,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.inTx = true
	clone.payments = s.payments.WithTx(tx)
	return &clone
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validation.Struct(req); err != nil {
		return domain.Subscription{}, err
	}
	memberID, err := validation.ParseID("member_id", req.MemberID)
	if err != nil {
		return domain.Subscription{}, err
	}
	planID, err := validation.ParseID("plan_id", req.PlanID)
	if err != nil {
		return domain.Subscription{}, err
	}
	initialPayment := req.InitialPaymentAmount.Round(2)
	if initialPayment.IsPositive() && req.PaymentMethod == "" {
		return domain.Subscription{}, validation.New("payment_method", "is required")
	}

	if err := s.ensureMember(ctx, memberID); err != nil {
		return domain.Subscription{}, err
	}
	plan, err := s.lookupPlan(ctx, planID)
	if err != nil {
		return domain.Subscription{}, err
	}

	now := s.clock.Now()
	startDate := now
	if req.StartDate != nil {
		startDate = req.StartDate.UTC()
	}

	subscription := s.snapshot(memberID, plan, startDate, now)
	if req.Notes != "" {
		subscription.Notes = &req.Notes
	}

	var created domain.Subscription
	err = s.inTransaction(ctx, func(svc *Service) error {
		var txErr error
		created, txErr = svc.insertWithPayment(ctx, &subscription, initialPayment, req.PaymentMethod, "")
		return txErr
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	obslogger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", created.ID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("plan_id", planID.String()),
		zap.String("paid_amount", created.PaidAmount.StringFixed(2)),
	)

	if !s.inTx {
		s.afterCreate(ctx, created, "ledger")
	}
	return created, nil
}

// snapshot freezes the plan terms onto a new active subscription.
func (s *Service) snapshot(memberID snowflake.ID, plan *plandomain.Plan, startDate, now time.Time) domain.Subscription {
	durationDays := s.ledgerRules().DurationDays(plan.DurationMonths)
	return domain.Subscription{
		ID:                    s.genID.Generate(),
		MemberID:              memberID,
		PlanID:                plan.ID,
		PlanNameSnapshot:      plan.Name,
		TotalSessionsSnapshot: plan.SessionsCount,
		TotalAmountSnapshot:   plan.Price.Round(2),
		SignupFeeSnapshot:     plan.SignupFee.Round(2),
		DurationDaysSnapshot:  durationDays,
		Status:                domain.SubscriptionStatusActive,
		StartDate:             startDate,
		EndDate:               startDate.AddDate(0, 0, durationDays),
		UsedSessions:          0,
		PaidAmount:            decimal.Zero,
		CreditApplied:         decimal.Zero,
		Metadata:              datatypes.JSONMap{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// insertWithPayment must run on a transaction-bound Service.
func (s *Service) insertWithPayment(ctx context.Context, subscription *domain.Subscription, amount decimal.Decimal, method, notes string) (domain.Subscription, error) {
	if err := s.repo.Insert(ctx, s.db, subscription); err != nil {
		return domain.Subscription{}, err
	}
	if !amount.IsPositive() {
		return *subscription, nil
	}

	_, err := s.payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		SubscriptionID: subscription.ID.String(),
		Amount:         amount,
		PaymentMethod:  method,
		PaymentDate:    &subscription.CreatedAt,
		Notes:          notes,
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return s.mustFind(ctx, subscription.ID)
}

func (s *Service) afterCreate(ctx context.Context, subscription domain.Subscription, source string) {
	s.promoter.PromoteIfTrial(ctx, subscription.MemberID)
	s.obsMetrics.RecordSubscriptionCreated(ctx, source)
	s.emit(ctx, events.SubscriptionCreated, subscription, map[string]any{
		"plan_id":     subscription.PlanID.String(),
		"paid_amount": subscription.PaidAmount.StringFixed(2),
	})
}

func (s *Service) ConsumeSession(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := validation.ParseID("subscription_id", id)
	if err != nil {
		return domain.Subscription{}, err
	}

	current, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := consumable(current); err != nil {
		return domain.Subscription{}, err
	}

	ok, err := s.repo.ConsumeSession(ctx, s.db, subscriptionID, s.clock.Now())
	if err != nil {
		return domain.Subscription{}, err
	}
	if !ok {
		// Lost a race; report what the row looks like now.
		latest, err := s.mustFind(ctx, subscriptionID)
		if err != nil {
			return domain.Subscription{}, err
		}
		if err := consumable(latest); err != nil {
			return domain.Subscription{}, err
		}
		s.obsMetrics.RecordStateConflict(ctx, "consume_session")
		return domain.Subscription{}, domain.ErrStateConflict
	}

	updated, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}

	expired := updated.Status == domain.SubscriptionStatusExpired
	s.obsMetrics.RecordSessionConsumed(ctx, expired)
	s.emit(ctx, events.SubscriptionSessionConsumed, updated, map[string]any{
		"used_sessions":      updated.UsedSessions,
		"remaining_sessions": updated.RemainingSessions(),
	})
	if expired {
		s.emit(ctx, events.SubscriptionExpired, updated, nil)
	}
	return updated, nil
}

func consumable(subscription domain.Subscription) error {
	if subscription.Status != domain.SubscriptionStatusActive {
		return domain.ErrInactiveSubscription
	}
	if subscription.UsedSessions >= subscription.TotalSessionsSnapshot {
		return domain.ErrNoSessionsRemaining
	}
	return nil
}

func (s *Service) Pause(ctx context.Context, id string, req domain.PauseSubscriptionRequest) (domain.Subscription, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validation.Struct(req); err != nil {
		return domain.Subscription{}, err
	}
	subscriptionID, err := validation.ParseID("subscription_id", id)
	if err != nil {
		return domain.Subscription{}, err
	}

	current, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if current.Status != domain.SubscriptionStatusActive {
		return domain.Subscription{}, domain.ErrInactiveSubscription
	}

	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	ok, err := s.repo.Pause(ctx, s.db, subscriptionID, reason, s.clock.Now())
	if err != nil {
		return domain.Subscription{}, err
	}
	if !ok {
		s.obsMetrics.RecordStateConflict(ctx, "pause")
		return domain.Subscription{}, domain.ErrStateConflict
	}

	updated, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	s.emit(ctx, events.SubscriptionPaused, updated, map[string]any{"reason": req.Reason})
	return updated, nil
}

func (s *Service) Resume(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := validation.ParseID("subscription_id", id)
	if err != nil {
		return domain.Subscription{}, err
	}

	current, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if current.Status != domain.SubscriptionStatusPaused {
		return domain.Subscription{}, domain.ErrInvalidTransition
	}

	ok, err := s.repo.Resume(ctx, s.db, subscriptionID, s.clock.Now())
	if err != nil {
		return domain.Subscription{}, err
	}
	if !ok {
		s.obsMetrics.RecordStateConflict(ctx, "resume")
		return domain.Subscription{}, domain.ErrStateConflict
	}

	updated, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	s.emit(ctx, events.SubscriptionResumed, updated, nil)
	return updated, nil
}

func (s *Service) CalculateUpgradeCredit(ctx context.Context, id string) (decimal.Decimal, error) {
	subscriptionID, err := validation.ParseID("subscription_id", id)
	if err != nil {
		return decimal.Zero, err
	}
	subscription, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	return subscription.UpgradeCredit(), nil
}

func (s *Service) Upgrade(ctx context.Context, req domain.UpgradeSubscriptionRequest) (domain.Subscription, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if err := validation.Struct(req); err != nil {
		return domain.Subscription{}, err
	}
	currentID, err := validation.ParseID("current_subscription_id", req.CurrentSubscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	newPlanID, err := validation.ParseID("new_plan_id", req.NewPlanID)
	if err != nil {
		return domain.Subscription{}, err
	}

	current, err := s.mustFind(ctx, currentID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if current.Status != domain.SubscriptionStatusActive {
		return domain.Subscription{}, domain.ErrInactiveSubscription
	}

	credit := current.UpgradeCredit()
	if !req.CreditAmount.Round(2).Equal(credit) {
		return domain.Subscription{}, fmt.Errorf("%w: expected %s, got %s",
			domain.ErrCreditMismatch, credit.StringFixed(2), req.CreditAmount.StringFixed(2))
	}

	plan, err := s.lookupPlan(ctx, newPlanID)
	if err != nil {
		return domain.Subscription{}, err
	}

	due := plan.Price.Round(2).Sub(credit)
	if due.IsNegative() {
		due = decimal.Zero
	}
	if due.IsPositive() && req.PaymentMethod == "" {
		return domain.Subscription{}, validation.New("payment_method", "is required")
	}

	now := s.clock.Now()
	startDate := now
	if req.EffectiveDate != nil {
		startDate = req.EffectiveDate.UTC()
	}

	next := s.snapshot(current.MemberID, plan, startDate, now)
	next.SignupFeeSnapshot = decimal.Zero
	next.CreditApplied = credit
	next.UpgradedFromID = &current.ID
	note := fmt.Sprintf("Upgrade from %s (credit applied: %s)", current.PlanNameSnapshot, credit.StringFixed(2))
	next.Notes = &note

	var upgraded domain.Subscription
	err = s.inTransaction(ctx, func(svc *Service) error {
		created, err := svc.insertWithPayment(ctx, &next, due, req.PaymentMethod, note)
		if err != nil {
			return err
		}
		ok, err := svc.repo.MarkUpgraded(ctx, svc.db, current.ID, created.ID, current.UsedSessions, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStateConflict
		}
		upgraded = created
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			s.obsMetrics.RecordStateConflict(ctx, "upgrade")
		}
		return domain.Subscription{}, err
	}

	obslogger.WithContext(ctx, s.log).Info("subscription upgraded",
		zap.String("subscription_id", upgraded.ID.String()),
		zap.String("upgraded_from_id", current.ID.String()),
		zap.String("credit_applied", credit.StringFixed(2)),
	)

	if !s.inTx {
		s.promoter.PromoteIfTrial(ctx, upgraded.MemberID)
		s.obsMetrics.RecordSubscriptionCreated(ctx, "upgrade")
		s.emit(ctx, events.SubscriptionUpgraded, upgraded, map[string]any{
			"upgraded_from_id": current.ID.String(),
			"credit_applied":   credit.StringFixed(2),
		})
	}
	return upgraded, nil
}

func (s *Service) GetWithDetails(ctx context.Context, id string) (domain.SubscriptionDetails, error) {
	subscriptionID, err := validation.ParseID("subscription_id", id)
	if err != nil {
		return domain.SubscriptionDetails{}, err
	}
	subscription, err := s.mustFind(ctx, subscriptionID)
	if err != nil {
		return domain.SubscriptionDetails{}, err
	}

	refunded, err := s.payments.RefundedTotal(ctx, subscriptionID)
	if err != nil {
		return domain.SubscriptionDetails{}, err
	}

	return domain.SubscriptionDetails{
		Subscription:         subscription,
		RemainingSessions:    subscription.RemainingSessions(),
		BalanceDue:           subscription.BalanceDue(),
		CompletionPercentage: subscription.CompletionPercentage(),
		DaysRemaining:        subscription.DaysRemaining(s.clock.Now()),
		RefundedAmount:       refunded,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	memberID, err := validation.ParseOptionalID("member_id", req.MemberID)
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}
	filter := domain.ListSubscriptionFilter{
		MemberID: memberID,
		Status:   domain.SubscriptionStatus(strings.TrimSpace(req.Status)),
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.MaxPageSize {
		pageSize = pagination.MaxPageSize
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	subscriptions := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		subscriptions = append(subscriptions, *item)
	}
	return domain.ListSubscriptionResponse{
		PageInfo:      *pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

// inTransaction runs fn on a transaction-bound Service, reusing the current
// transaction when there is one.
func (s *Service) inTransaction(ctx context.Context, fn func(svc *Service) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx).(*Service))
	})
}

func (s *Service) mustFind(ctx context.Context, id snowflake.ID) (domain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if subscription == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

func (s *Service) ensureMember(ctx context.Context, id snowflake.ID) error {
	member, err := s.memberRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if member == nil {
		return memberdomain.ErrMemberNotFound
	}
	return nil
}

// lookupPlan reads through the catalog cache, except inside a transaction
// where the plan is read on the transaction itself.
func (s *Service) lookupPlan(ctx context.Context, id snowflake.ID) (*plandomain.Plan, error) {
	var (
		plan *plandomain.Plan
		err  error
	)
	if s.inTx {
		plan, err = s.planRepo.FindByID(ctx, s.db, id)
	} else {
		plan, err = s.plans.GetPlanByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ledgerRules() config.LedgerConfig {
	if s.ledgerConfig == nil {
		return config.DefaultLedgerConfig()
	}
	return s.ledgerConfig.Get()
}

func (s *Service) emit(ctx context.Context, typ events.Type, subscription domain.Subscription, payload map[string]any) {
	if s.inTx {
		return
	}
	events.Emit(ctx, s.publisher, s.log, events.New(ctx, typ, subscription.ID, subscription.MemberID, s.clock.Now(), payload))
}
