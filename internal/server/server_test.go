package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	memberrepo "github.com/smallbiznis/studioledger/internal/member/repository"
	memberservice "github.com/smallbiznis/studioledger/internal/member/service"
	"github.com/smallbiznis/studioledger/internal/observability"
	paymentrepo "github.com/smallbiznis/studioledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/studioledger/internal/payment/service"
	planrepo "github.com/smallbiznis/studioledger/internal/plan/repository"
	planservice "github.com/smallbiznis/studioledger/internal/plan/service"
	"github.com/smallbiznis/studioledger/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/studioledger/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/studioledger/internal/subscription/service"
	"github.com/smallbiznis/studioledger/internal/testutil"
	transactiondomain "github.com/smallbiznis/studioledger/internal/transaction/domain"
	transactionservice "github.com/smallbiznis/studioledger/internal/transaction/service"
	"github.com/smallbiznis/studioledger/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiHarness struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	subs := subscriptionrepo.Provide()
	members := memberrepo.Provide()
	plans := planrepo.Provide()
	payments := paymentrepo.Provide()
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
	transactionSvc := transactionservice.New(transactionservice.Params{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Subscriptions:    subscriptionSvc,
		SubscriptionRepo: subs,
		Payments:         paymentSvc,
		PaymentRepo:      payments,
		Promoter:         promoter,
	})

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{Environment: "test"}),
		DB:              db,
		Log:             log,
		MemberSvc:       memberservice.New(memberservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: members}),
		SubscriptionSvc: subscriptionSvc,
		PaymentSvc:      paymentSvc,
		TransactionSvc:  transactionSvc,
	})
	return &apiHarness{db: db, node: node, engine: srv.Engine()}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) seed(t *testing.T) (memberID, planID snowflake.ID) {
	t.Helper()
	memberID = h.node.Generate()
	testutil.InsertMember(t, h.db, memberID, "trial", "pending")
	planID = h.node.Generate()
	testutil.InsertPlan(t, h.db, planID, testutil.PlanFixture{Name: "10 Class Pack", Price: "100", SessionsCount: 10})
	return memberID, planID
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	memberID, planID := h.seed(t)

	rec := h.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"member_id":              memberID.String(),
		"plan_id":                planID.String(),
		"initial_payment_amount": "25",
		"payment_method":         "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[subscriptiondomain.Subscription](t, rec)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, created.Status)
	assert.True(t, created.PaidAmount.Equal(decimal.NewFromInt(25)))

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/consume", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeData[subscriptiondomain.Subscription](t, rec).UsedSessions)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/pause", created.ID), map[string]any{"reason": "travel"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPaused, decodeData[subscriptiondomain.Subscription](t, rec).Status)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/consume", created.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "inactive_subscription", decodeError(t, rec).Code)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/resume", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/resume", created.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Code)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/subscriptions/%s", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	details := decodeData[subscriptiondomain.SubscriptionDetails](t, rec)
	assert.Equal(t, 9, details.RemainingSessions)
	assert.True(t, details.BalanceDue.Equal(decimal.NewFromInt(75)))

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/subscriptions?member_id=%s", memberID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeData[[]subscriptiondomain.Subscription](t, rec), 1)
}

func TestUpgradeCreditMismatchIsUnprocessable(t *testing.T) {
	h := newAPIHarness(t)
	memberID, planID := h.seed(t)
	rec := h.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"member_id":              memberID.String(),
		"plan_id":                planID.String(),
		"initial_payment_amount": "100",
		"payment_method":         "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[subscriptiondomain.Subscription](t, rec)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/subscriptions/%s/upgrade-credit", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	credit := decodeData[struct {
		CreditAmount decimal.Decimal `json:"credit_amount"`
	}](t, rec)
	assert.True(t, credit.CreditAmount.Equal(decimal.NewFromInt(100)))

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/upgrade", created.ID), map[string]any{
		"new_plan_id":    planID.String(),
		"credit_amount":  "99.99",
		"payment_method": "card",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "credit_mismatch", decodeError(t, rec).Code)
}

func TestAtomicPurchaseAndRefundOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	memberID, planID := h.seed(t)

	rec := h.do(t, http.MethodPost, "/api/transactions/subscriptions", map[string]any{
		"member_id":      memberID.String(),
		"plan_id":        planID.String(),
		"payment_amount": "100",
		"payment_method": "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeData[transactiondomain.CreateSubscriptionWithPaymentResult](t, rec)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/payments/%s/receipt", result.PaymentID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/payments/%s/refund", result.PaymentID), map[string]any{
		"refund_amount": "150",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "refund_exceeds_refundable", decodeError(t, rec).Code)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/payments/%s/refund", result.PaymentID), map[string]any{
		"refund_amount": "100",
		"refund_reason": "moved away",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	refund := decodeData[transactiondomain.ProcessRefundResult](t, rec)
	assert.True(t, refund.SubscriptionCancelled)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/api/subscriptions/%s/payments", result.SubscriptionID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, rec), 2)
}

func TestErrorResponses(t *testing.T) {
	h := newAPIHarness(t)
	memberID, _ := h.seed(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
		field  string
	}{
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/api/subscriptions",
			body:   "{not json",
			status: http.StatusBadRequest,
			code:   "validation_error",
			field:  "request",
		},
		{
			name:   "invalid payment method",
			method: http.MethodPost,
			path:   "/api/payments",
			body: map[string]any{
				"subscription_id": "1",
				"amount":          "10",
				"payment_method":  "barter",
			},
			status: http.StatusBadRequest,
			code:   "validation_error",
			field:  "payment_method",
		},
		{
			name:   "unknown plan",
			method: http.MethodPost,
			path:   "/api/subscriptions",
			body: map[string]any{
				"member_id":              memberID.String(),
				"plan_id":                h.node.Generate().String(),
				"initial_payment_amount": "0",
			},
			status: http.StatusNotFound,
			code:   "plan_not_found",
		},
		{
			name:   "unknown subscription",
			method: http.MethodGet,
			path:   fmt.Sprintf("/api/subscriptions/%s", h.node.Generate()),
			status: http.StatusNotFound,
			code:   "subscription_not_found",
		},
		{
			name:   "unknown payment",
			method: http.MethodGet,
			path:   fmt.Sprintf("/api/payments/%s", h.node.Generate()),
			status: http.StatusNotFound,
			code:   "payment_not_found",
		},
		{
			name:   "unknown route",
			method: http.MethodGet,
			path:   "/api/nowhere",
			status: http.StatusNotFound,
			code:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			payload := decodeError(t, rec)
			assert.Equal(t, tt.code, payload.Code)
			assert.Equal(t, tt.field, payload.Field)
		})
	}
}

func TestMapError(t *testing.T) {
	status, payload := mapError(&transactiondomain.Error{
		Op:     transactiondomain.OpRefund,
		Reason: "connection reset",
		Err:    errors.New("connection reset"),
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "transaction_failed", payload.Code)
	assert.Contains(t, payload.Message, "refund failed")

	status, payload = mapError(fmt.Errorf("wrapped: %w", subscriptiondomain.ErrStateConflict))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state_conflict", payload.Code)

	status, payload = mapError(validation.New("notes", "is too long"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "notes", payload.Field)

	status, payload = mapError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Code)
	assert.Equal(t, "internal server error", payload.Message)
}

func TestMapErrorRateLimited(t *testing.T) {
	status, payload := mapError(ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", payload.Code)
}
