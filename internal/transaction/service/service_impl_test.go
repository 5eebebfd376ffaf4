package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	"github.com/smallbiznis/studioledger/internal/events"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	memberrepo "github.com/smallbiznis/studioledger/internal/member/repository"
	memberservice "github.com/smallbiznis/studioledger/internal/member/service"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/studioledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/studioledger/internal/payment/service"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	planrepo "github.com/smallbiznis/studioledger/internal/plan/repository"
	planservice "github.com/smallbiznis/studioledger/internal/plan/service"
	"github.com/smallbiznis/studioledger/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/studioledger/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/studioledger/internal/subscription/service"
	"github.com/smallbiznis/studioledger/internal/testutil"
	"github.com/smallbiznis/studioledger/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type eventLog struct {
	types []events.Type
}

func (l *eventLog) Publish(_ context.Context, evt events.Event) error {
	l.types = append(l.types, evt.Type)
	return nil
}

type gateway struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    domain.Service
	events *eventLog
}

func newGateway(t *testing.T, payments paymentdomain.Repository) *gateway {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	subs := subscriptionrepo.Provide()
	members := memberrepo.Provide()
	plans := planrepo.Provide()
	published := &eventLog{}
	promoter := memberservice.NewPromoter(memberservice.PromoterParams{DB: db, Log: log, Clock: clk, Repo: members})

	paymentSvc := paymentservice.New(paymentservice.Params{
		Cfg:              config.Config{AppName: "studioledger"},
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Repo:             payments,
		SubscriptionRepo: subs,
		MemberRepo:       members,
		PDF:              pdf.New(),
	})
	subscriptionSvc := subscriptionservice.New(subscriptionservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         subs,
		Plans:        planservice.NewCatalog(planservice.Params{DB: db, Repo: plans}),
		PlanRepo:     plans,
		MemberRepo:   members,
		Payments:     paymentSvc,
		Promoter:     promoter,
		LedgerConfig: config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
	})

	svc := New(Params{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Subscriptions:    subscriptionSvc,
		SubscriptionRepo: subs,
		Payments:         paymentSvc,
		PaymentRepo:      payments,
		Promoter:         promoter,
		Publisher:        published,
	})
	return &gateway{db: db, node: node, svc: svc, events: published}
}

func (g *gateway) purchase(t *testing.T, memberType string, amount int64) domain.CreateSubscriptionWithPaymentResult {
	t.Helper()
	memberID := g.node.Generate()
	testutil.InsertMember(t, g.db, memberID, memberType, "pending")
	planID := g.node.Generate()
	testutil.InsertPlan(t, g.db, planID, testutil.PlanFixture{Name: "10 Class Pack", Price: "100", SessionsCount: 10})

	result, err := g.svc.CreateSubscriptionWithPayment(context.Background(), domain.CreateSubscriptionWithPaymentRequest{
		MemberID:      memberID.String(),
		PlanID:        planID.String(),
		PaymentAmount: decimal.NewFromInt(amount),
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return result
}

func (g *gateway) subscription(t *testing.T, id snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	sub, err := subscriptionrepo.Provide().FindByID(context.Background(), g.db, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return *sub
}

func (g *gateway) payment(t *testing.T, id snowflake.ID) paymentdomain.PaymentRecord {
	t.Helper()
	payment, err := paymentrepo.Provide().FindByID(context.Background(), g.db, id)
	require.NoError(t, err)
	require.NotNil(t, payment)
	return *payment
}

func (g *gateway) rows(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, g.db.Raw(`SELECT COUNT(*) FROM `+table).Scan(&n).Error)
	return n
}

func boolPtr(v bool) *bool { return &v }

func TestCreateSubscriptionWithPayment(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())
	result := g.purchase(t, "trial", 60)

	sub := g.subscription(t, result.SubscriptionID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.PaidAmount.Equal(decimal.NewFromInt(60)), sub.PaidAmount.String())

	payment := g.payment(t, result.PaymentID)
	assert.Equal(t, result.SubscriptionID, payment.SubscriptionID)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, payment.PaymentStatus)

	member, err := memberrepo.Provide().FindByID(context.Background(), g.db, sub.MemberID)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.MemberTypeFull, member.MemberType)
	assert.Equal(t, []events.Type{events.SubscriptionCreated, events.PaymentRecorded}, g.events.types)
}

func TestCreateSubscriptionWithPaymentPassesBusinessErrorsThrough(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())
	memberID := g.node.Generate()
	testutil.InsertMember(t, g.db, memberID, "full", "active")

	_, err := g.svc.CreateSubscriptionWithPayment(context.Background(), domain.CreateSubscriptionWithPaymentRequest{
		MemberID:      memberID.String(),
		PlanID:        g.node.Generate().String(),
		PaymentAmount: decimal.NewFromInt(10),
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)
	assert.False(t, errors.Is(err, domain.ErrTransactionFailed))
	assert.Zero(t, g.rows(t, "subscriptions"))
}

func TestCreateSubscriptionWithPaymentRequiresPositiveAmount(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())

	_, err := g.svc.CreateSubscriptionWithPayment(context.Background(), domain.CreateSubscriptionWithPaymentRequest{
		MemberID:      g.node.Generate().String(),
		PlanID:        g.node.Generate().String(),
		PaymentAmount: decimal.Zero,
		PaymentMethod: "cash",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransactionFailed))
}

type failingPayments struct {
	paymentdomain.Repository
	insertErr error
	stale     bool
}

func (r failingPayments) Insert(ctx context.Context, db *gorm.DB, payment *paymentdomain.PaymentRecord) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.Repository.Insert(ctx, db, payment)
}

// FindByID optionally hides refunds made since the caller last looked.
func (r failingPayments) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	payment, err := r.Repository.FindByID(ctx, db, id)
	if payment != nil && r.stale {
		payment.RefundedAmount = decimal.Zero
	}
	return payment, err
}

func TestCreateSubscriptionWithPaymentRollsBackOnStoreFailure(t *testing.T) {
	g := newGateway(t, failingPayments{Repository: paymentrepo.Provide(), insertErr: errors.New("disk full")})
	memberID := g.node.Generate()
	testutil.InsertMember(t, g.db, memberID, "trial", "pending")
	planID := g.node.Generate()
	testutil.InsertPlan(t, g.db, planID, testutil.PlanFixture{Name: "Monthly", Price: "80", SessionsCount: 8})

	_, err := g.svc.CreateSubscriptionWithPayment(context.Background(), domain.CreateSubscriptionWithPaymentRequest{
		MemberID:      memberID.String(),
		PlanID:        planID.String(),
		PaymentAmount: decimal.NewFromInt(80),
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, domain.ErrTransactionFailed)
	assert.EqualError(t, err, "transaction failed: disk full")
	assert.Zero(t, g.rows(t, "subscriptions"))
	assert.Zero(t, g.rows(t, "payments"))

	member, err := memberrepo.Provide().FindByID(context.Background(), g.db, memberID)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.MemberTypeTrial, member.MemberType)
	assert.Empty(t, g.events.types)
}

func TestPartialRefundThenFullRefundWithCancel(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())
	purchase := g.purchase(t, "full", 100)

	first, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:          purchase.PaymentID.String(),
		RefundAmount:       decimal.NewFromInt(40),
		RefundReason:       "injury",
		CancelSubscription: boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, first.SubscriptionCancelled)
	assert.True(t, first.RefundAmount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, purchase.PaymentID, first.PaymentID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, g.subscription(t, purchase.SubscriptionID).Status)

	refund := g.payment(t, first.RefundID)
	assert.Equal(t, paymentdomain.PaymentStatusRefund, refund.PaymentStatus)
	require.NotNil(t, refund.RefundOfID)
	assert.Equal(t, purchase.PaymentID, *refund.RefundOfID)
	assert.True(t, g.payment(t, purchase.PaymentID).RefundedAmount.Equal(decimal.NewFromInt(40)))

	_, err = g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    purchase.PaymentID.String(),
		RefundAmount: decimal.RequireFromString("60.01"),
	})
	require.ErrorIs(t, err, paymentdomain.ErrRefundExceedsRefundable)
	assert.False(t, errors.Is(err, domain.ErrTransactionFailed))

	second, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    purchase.PaymentID.String(),
		RefundAmount: decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	assert.True(t, second.SubscriptionCancelled)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, g.subscription(t, purchase.SubscriptionID).Status)
	assert.Contains(t, g.events.types, events.SubscriptionCancelled)

	// Refund rows never count towards paid_amount.
	assert.True(t, g.subscription(t, purchase.SubscriptionID).PaidAmount.Equal(decimal.NewFromInt(100)))
}

func TestRefundOfRefundIsRejected(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())
	purchase := g.purchase(t, "full", 50)

	refund, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:          purchase.PaymentID.String(),
		RefundAmount:       decimal.NewFromInt(10),
		CancelSubscription: boolPtr(false),
	})
	require.NoError(t, err)

	_, err = g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    refund.RefundID.String(),
		RefundAmount: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, paymentdomain.ErrCannotRefundARefund)
	assert.Equal(t, int64(2), g.rows(t, "payments"))
}

func TestRefundUnknownPayment(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())

	_, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    g.node.Generate().String(),
		RefundAmount: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestRefundRacingAnotherRefundConflicts(t *testing.T) {
	repo := &failingPayments{Repository: paymentrepo.Provide()}
	g := newGateway(t, repo)
	purchase := g.purchase(t, "full", 100)

	_, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:          purchase.PaymentID.String(),
		RefundAmount:       decimal.NewFromInt(30),
		CancelSubscription: boolPtr(false),
	})
	require.NoError(t, err)

	repo.stale = true
	_, err = g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    purchase.PaymentID.String(),
		RefundAmount: decimal.NewFromInt(30),
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrStateConflict)
	assert.Equal(t, int64(2), g.rows(t, "payments"))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, g.subscription(t, purchase.SubscriptionID).Status)
}

func TestRefundStoreFailureIsWrapped(t *testing.T) {
	repo := &failingPayments{Repository: paymentrepo.Provide()}
	g := newGateway(t, repo)
	purchase := g.purchase(t, "full", 100)

	repo.insertErr = errors.New("connection reset")
	_, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    purchase.PaymentID.String(),
		RefundAmount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrTransactionFailed)
	assert.EqualError(t, err, "refund failed: connection reset")

	var txErr *domain.Error
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, domain.OpRefund, txErr.Op)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, g.subscription(t, purchase.SubscriptionID).Status)
}

func TestRefundOnCancelledSubscriptionReportsNoCancellation(t *testing.T) {
	g := newGateway(t, paymentrepo.Provide())
	purchase := g.purchase(t, "full", 100)
	require.NoError(t, g.db.Exec(`UPDATE subscriptions SET status = 'expired' WHERE id = ?`, purchase.SubscriptionID).Error)

	result, err := g.svc.ProcessRefund(context.Background(), domain.ProcessRefundRequest{
		PaymentID:    purchase.PaymentID.String(),
		RefundAmount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.False(t, result.SubscriptionCancelled)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, g.subscription(t, purchase.SubscriptionID).Status)
}
