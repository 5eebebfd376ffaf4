package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/internal/events"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	"github.com/smallbiznis/studioledger/internal/payment/domain"
	"github.com/smallbiznis/studioledger/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	"github.com/smallbiznis/studioledger/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const receiptDateLayout = "2006-01-02"

type Params struct {
	fx.In

	Cfg              config.Config
	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	MemberRepo       memberdomain.Repository
	PDF              pdf.Provider
	Publisher        events.Publisher `optional:"true"`
	ObsMetrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	studioName       string
	db               *gorm.DB
	inTx             bool
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	subscriptionRepo subscriptiondomain.Repository
	memberRepo       memberdomain.Repository
	pdf              pdf.Provider
	publisher        events.Publisher
	obsMetrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		studioName:       p.Cfg.AppName,
		db:               p.DB,
		log:              p.Log.Named("payment.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		memberRepo:       p.MemberRepo,
		pdf:              p.PDF,
		publisher:        p.Publisher,
		obsMetrics:       p.ObsMetrics,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.inTx = true
	return &clone
}

func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (domain.PaymentRecord, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.ReferenceNumber = strings.TrimSpace(req.ReferenceNumber)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validation.Struct(req); err != nil {
		return domain.PaymentRecord{}, err
	}
	if !req.Amount.Round(2).IsPositive() {
		return domain.PaymentRecord{}, validation.New("amount", "must be greater than 0")
	}
	subscriptionID, err := validation.ParseID("subscription_id", req.SubscriptionID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	if s.inTx {
		return s.record(ctx, s.db, subscriptionID, req)
	}

	var payment domain.PaymentRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		payment, txErr = s.record(ctx, tx, subscriptionID, req)
		return txErr
	})
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	s.obsMetrics.RecordPayment(ctx, payment.PaymentMethod)
	events.Emit(ctx, s.publisher, s.log, events.New(ctx, events.PaymentRecorded, subscriptionID, 0, payment.CreatedAt,
		payment.EventPayload()))
	return payment, nil
}

func (s *Service) record(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, req domain.RecordPaymentRequest) (domain.PaymentRecord, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, db, subscriptionID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if subscription == nil {
		return domain.PaymentRecord{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}

	payment := domain.PaymentRecord{
		ID:              s.genID.Generate(),
		SubscriptionID:  subscriptionID,
		Amount:          req.Amount.Round(2),
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusCompleted,
		PaymentDate:     paymentDate,
		ReferenceNumber: optionalString(req.ReferenceNumber),
		Notes:           optionalString(req.Notes),
		ReceiptNumber:   domain.NewReceiptNumber(),
		RefundedAmount:  decimal.Zero,
		CreatedAt:       now,
	}
	if err := s.repo.Insert(ctx, db, &payment); err != nil {
		return domain.PaymentRecord{}, err
	}

	paid, err := s.reconcile(ctx, db, subscriptionID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	obslogger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("paid_amount", paid.StringFixed(2)),
	)
	return payment, nil
}

// Reconcile rewrites paid_amount as the sum of completed payments. Running it
// any number of times yields the same value.
func (s *Service) Reconcile(ctx context.Context, subscriptionID snowflake.ID) (decimal.Decimal, error) {
	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	if subscription == nil {
		return decimal.Zero, subscriptiondomain.ErrSubscriptionNotFound
	}
	return s.reconcile(ctx, s.db, subscriptionID)
}

func (s *Service) reconcile(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (decimal.Decimal, error) {
	amounts, err := s.repo.CompletedAmounts(ctx, db, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	paid := sum(amounts)
	if err := s.subscriptionRepo.UpdatePaidAmount(ctx, db, subscriptionID, paid, s.clock.Now()); err != nil {
		return decimal.Zero, err
	}
	return paid, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.PaymentRecord, error) {
	paymentID, err := validation.ParseID("payment_id", id)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if payment == nil {
		return domain.PaymentRecord{}, domain.ErrPaymentNotFound
	}
	return *payment, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.PaymentRecord, error) {
	id, err := validation.ParseID("subscription_id", subscriptionID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	payments, err := s.repo.ListBySubscription(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []domain.PaymentRecord{}
	}
	return payments, nil
}

func (s *Service) RefundedTotal(ctx context.Context, subscriptionID snowflake.ID) (decimal.Decimal, error) {
	amounts, err := s.repo.RefundAmounts(ctx, s.db, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	return sum(amounts), nil
}

func (s *Service) Receipt(ctx context.Context, id string) (domain.Receipt, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}

	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, payment.SubscriptionID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if subscription == nil {
		return domain.Receipt{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	data := pdf.ReceiptData{
		StudioName:     s.studioName,
		ReceiptNumber:  payment.ReceiptNumber,
		DatePaid:       payment.PaymentDate.Format(receiptDateLayout),
		SubscriptionID: subscription.ID.String(),
		PlanName:       subscription.PlanNameSnapshot,
		PaymentMethod:  payment.PaymentMethod,
		Amount:         payment.Amount.StringFixed(2),
		BalanceDue:     subscription.BalanceDue().StringFixed(2),
	}
	if payment.ReferenceNumber != nil {
		data.ReferenceNumber = *payment.ReferenceNumber
	}
	if payment.Notes != nil {
		data.Notes = *payment.Notes
	}
	if payment.IsRefund() {
		data.PlanName = "Refund: " + subscription.PlanNameSnapshot
	} else if payment.RefundedAmount.IsPositive() {
		data.RefundedAmount = payment.RefundedAmount.StringFixed(2)
	}

	member, err := s.memberRepo.FindByID(ctx, s.db, subscription.MemberID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if member != nil {
		data.MemberName = member.Name
		data.MemberEmail = member.Email
	}

	body, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		return domain.Receipt{}, err
	}
	return domain.Receipt{Filename: payment.ReceiptNumber + ".pdf", Body: body}, nil
}

func sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
