package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, subscription_id, amount, payment_method, payment_status, payment_date,
	reference_number, notes, receipt_number, refund_of_id, refunded_amount, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.SubscriptionID,
		payment.Amount,
		payment.PaymentMethod,
		payment.PaymentStatus,
		payment.PaymentDate,
		payment.ReferenceNumber,
		payment.Notes,
		payment.ReceiptNumber,
		payment.RefundOfID,
		payment.RefundedAmount,
		payment.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	var payment domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.PaymentRecord, error) {
	var payments []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE subscription_id = ? ORDER BY payment_date ASC, id ASC`,
		subscriptionID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) CompletedAmounts(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]decimal.Decimal, error) {
	return r.amounts(ctx, db, subscriptionID, domain.PaymentStatusCompleted)
}

func (r *repo) RefundAmounts(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]decimal.Decimal, error) {
	return r.amounts(ctx, db, subscriptionID, domain.PaymentStatusRefund)
}

type amountRow struct {
	Amount decimal.Decimal
}

func (r *repo) amounts(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, status domain.PaymentStatus) ([]decimal.Decimal, error) {
	var rows []amountRow
	err := db.WithContext(ctx).Raw(
		`SELECT amount FROM payments WHERE subscription_id = ? AND payment_status = ?`,
		subscriptionID,
		status,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, 0, len(rows))
	for _, row := range rows {
		amounts = append(amounts, row.Amount)
	}
	return amounts, nil
}

func (r *repo) UpdateRefundedAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, previous, next decimal.Decimal) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments SET refunded_amount = ? WHERE id = ? AND refunded_amount = ?`,
		next,
		id,
		previous,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
