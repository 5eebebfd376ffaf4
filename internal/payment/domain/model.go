package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefund    PaymentStatus = "refund"
)

// PaymentRecord is one row of the payment ledger. Rows are appended, never
// deleted; refunds are separate rows pointing at the refunded payment.
type PaymentRecord struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubscriptionID  snowflake.ID    `gorm:"not null;index" json:"subscription_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentMethod   string          `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	ReceiptNumber   string          `gorm:"not null;uniqueIndex" json:"receipt_number"`
	RefundOfID      *snowflake.ID   `json:"refund_of_id,omitempty"`
	RefundedAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"refunded_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (PaymentRecord) TableName() string { return "payments" }

func (p PaymentRecord) IsRefund() bool {
	return p.PaymentStatus == PaymentStatusRefund
}

// Refundable is the part of a completed payment not yet refunded.
func (p PaymentRecord) Refundable() decimal.Decimal {
	left := p.Amount.Sub(p.RefundedAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// NewReceiptNumber returns a sortable receipt number, unique per payment row.
func NewReceiptNumber() string {
	return "RCPT-" + ulid.Make().String()
}

func (p PaymentRecord) EventPayload() map[string]any {
	payload := map[string]any{
		"payment_id":     p.ID.String(),
		"amount":         p.Amount.StringFixed(2),
		"payment_method": p.PaymentMethod,
		"payment_status": string(p.PaymentStatus),
		"receipt_number": p.ReceiptNumber,
	}
	if p.RefundOfID != nil {
		payload["refund_of_id"] = p.RefundOfID.String()
	}
	return payload
}
