package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/events"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	"github.com/smallbiznis/studioledger/internal/transaction/domain"
	"github.com/smallbiznis/studioledger/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Subscriptions    subscriptiondomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	Payments         paymentdomain.Service
	PaymentRepo      paymentdomain.Repository
	Promoter         memberdomain.Promoter
	Publisher        events.Publisher `optional:"true"`
	ObsMetrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	subscriptions    subscriptiondomain.Service
	subscriptionRepo subscriptiondomain.Repository
	payments         paymentdomain.Service
	paymentRepo      paymentdomain.Repository
	promoter         memberdomain.Promoter
	publisher        events.Publisher
	obsMetrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("transaction.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		subscriptions:    p.Subscriptions,
		subscriptionRepo: p.SubscriptionRepo,
		payments:         p.Payments,
		paymentRepo:      p.PaymentRepo,
		promoter:         p.Promoter,
		publisher:        p.Publisher,
		obsMetrics:       p.ObsMetrics,
	}
}

// CreateSubscriptionWithPayment commits the subscription and its first payment
// together or not at all.
func (s *Service) CreateSubscriptionWithPayment(ctx context.Context, req domain.CreateSubscriptionWithPaymentRequest) (domain.CreateSubscriptionWithPaymentResult, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validation.Struct(req); err != nil {
		return domain.CreateSubscriptionWithPaymentResult{}, err
	}
	if !req.PaymentAmount.Round(2).IsPositive() {
		return domain.CreateSubscriptionWithPaymentResult{}, validation.New("payment_amount", "must be greater than 0")
	}

	var (
		subscription subscriptiondomain.Subscription
		payment      paymentdomain.PaymentRecord
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		subscription, err = s.subscriptions.WithTx(tx).Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
			MemberID:  req.MemberID,
			PlanID:    req.PlanID,
			StartDate: req.StartDate,
			Notes:     req.Notes,
		})
		if err != nil {
			return err
		}

		payment, err = s.payments.WithTx(tx).RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
			SubscriptionID: subscription.ID.String(),
			Amount:         req.PaymentAmount,
			PaymentMethod:  req.PaymentMethod,
			PaymentDate:    req.PaymentDate,
		})
		return err
	})
	if err != nil {
		return domain.CreateSubscriptionWithPaymentResult{}, s.fail(ctx, domain.OpCreateSubscription, err)
	}

	obslogger.WithContext(ctx, s.log).Info("subscription created with payment",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("payment_id", payment.ID.String()),
	)

	s.promoter.PromoteIfTrial(ctx, subscription.MemberID)
	s.obsMetrics.RecordSubscriptionCreated(ctx, "transaction")
	s.obsMetrics.RecordPayment(ctx, payment.PaymentMethod)
	now := s.clock.Now()
	events.Emit(ctx, s.publisher, s.log, events.New(ctx, events.SubscriptionCreated, subscription.ID, subscription.MemberID, now,
		map[string]any{"plan_id": subscription.PlanID.String(), "paid_amount": payment.Amount.StringFixed(2)}))
	events.Emit(ctx, s.publisher, s.log, events.New(ctx, events.PaymentRecorded, subscription.ID, subscription.MemberID, now,
		payment.EventPayload()))

	return domain.CreateSubscriptionWithPaymentResult{
		SubscriptionID: subscription.ID,
		PaymentID:      payment.ID,
	}, nil
}

// ProcessRefund appends a refund row against a completed payment and, unless
// told otherwise, cancels the subscription in the same transaction.
func (s *Service) ProcessRefund(ctx context.Context, req domain.ProcessRefundRequest) (domain.ProcessRefundResult, error) {
	req.RefundReason = strings.TrimSpace(req.RefundReason)
	if err := validation.Struct(req); err != nil {
		return domain.ProcessRefundResult{}, err
	}
	paymentID, err := validation.ParseID("payment_id", req.PaymentID)
	if err != nil {
		return domain.ProcessRefundResult{}, err
	}
	amount := req.RefundAmount.Round(2)
	if !amount.IsPositive() {
		return domain.ProcessRefundResult{}, validation.New("refund_amount", "must be greater than 0")
	}
	cancel := true
	if req.CancelSubscription != nil {
		cancel = *req.CancelSubscription
	}

	var (
		refund    paymentdomain.PaymentRecord
		memberID  snowflake.ID
		cancelled bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.paymentRepo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if original == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		if original.IsRefund() {
			return paymentdomain.ErrCannotRefundARefund
		}
		refundable := original.Refundable()
		if amount.GreaterThan(refundable) {
			return fmt.Errorf("%w: %s refundable", paymentdomain.ErrRefundExceedsRefundable, refundable.StringFixed(2))
		}

		now := s.clock.Now()
		refund = paymentdomain.PaymentRecord{
			ID:             s.genID.Generate(),
			SubscriptionID: original.SubscriptionID,
			Amount:         amount,
			PaymentMethod:  original.PaymentMethod,
			PaymentStatus:  paymentdomain.PaymentStatusRefund,
			PaymentDate:    now,
			ReceiptNumber:  paymentdomain.NewReceiptNumber(),
			RefundOfID:     &original.ID,
			RefundedAmount: decimal.Zero,
			CreatedAt:      now,
		}
		if req.RefundReason != "" {
			refund.Notes = &req.RefundReason
		}
		if err := s.paymentRepo.Insert(ctx, tx, &refund); err != nil {
			return err
		}

		ok, err := s.paymentRepo.UpdateRefundedAmount(ctx, tx, original.ID, original.RefundedAmount, original.RefundedAmount.Add(amount))
		if err != nil {
			return err
		}
		if !ok {
			return subscriptiondomain.ErrStateConflict
		}

		subscription, err := s.subscriptionRepo.FindByID(ctx, tx, original.SubscriptionID)
		if err != nil {
			return err
		}
		if subscription != nil {
			memberID = subscription.MemberID
		}

		if cancel {
			cancelled, err = s.subscriptionRepo.Cancel(ctx, tx, original.SubscriptionID, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ProcessRefundResult{}, s.fail(ctx, domain.OpRefund, err)
	}

	obslogger.WithContext(ctx, s.log).Info("refund processed",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.String("refund_amount", amount.StringFixed(2)),
		zap.Bool("subscription_cancelled", cancelled),
	)

	s.obsMetrics.RecordRefund(ctx, cancelled)
	events.Emit(ctx, s.publisher, s.log, events.New(ctx, events.PaymentRefunded, refund.SubscriptionID, memberID, refund.CreatedAt,
		refund.EventPayload()))
	if cancelled {
		events.Emit(ctx, s.publisher, s.log, events.New(ctx, events.SubscriptionCancelled, refund.SubscriptionID, memberID, refund.CreatedAt,
			map[string]any{"reason": "refund"}))
	}

	return domain.ProcessRefundResult{
		RefundID:              refund.ID,
		PaymentID:             paymentID,
		RefundAmount:          amount,
		SubscriptionCancelled: cancelled,
	}, nil
}

var businessErrors = []error{
	validation.ErrValidation,
	plandomain.ErrPlanNotFound,
	memberdomain.ErrMemberNotFound,
	subscriptiondomain.ErrSubscriptionNotFound,
	subscriptiondomain.ErrStateConflict,
	paymentdomain.ErrPaymentNotFound,
	paymentdomain.ErrRefundExceedsRefundable,
	paymentdomain.ErrCannotRefundARefund,
}

// fail passes business rule rejections through and wraps everything else.
func (s *Service) fail(ctx context.Context, op domain.Op, err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}

	obslogger.WithContext(ctx, s.log).Error("atomic operation failed",
		zap.String("operation", string(op)),
		zap.Error(err),
	)
	s.obsMetrics.RecordTransactionFailure(ctx, string(op))
	return &domain.Error{Op: op, Reason: err.Error(), Err: err}
}
