package migration

import (
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the postgres migrations for local sqlite databases and
// package tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		member_type TEXT NOT NULL DEFAULT 'trial',
		status TEXT NOT NULL DEFAULT 'pending',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_members_email ON members(email) WHERE email IS NOT NULL AND email <> ''`,
	`CREATE TABLE IF NOT EXISTS plans (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		sessions_count INTEGER NOT NULL DEFAULT 0,
		duration_months INTEGER,
		signup_fee NUMERIC NOT NULL DEFAULT 0,
		is_collaboration_plan BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL,
		plan_id BIGINT NOT NULL,
		plan_name_snapshot TEXT NOT NULL,
		total_sessions_snapshot INTEGER NOT NULL,
		total_amount_snapshot NUMERIC NOT NULL,
		signup_fee_snapshot NUMERIC NOT NULL DEFAULT 0,
		duration_days_snapshot INTEGER NOT NULL,
		status TEXT NOT NULL,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		pause_start_date TIMESTAMP,
		pause_end_date TIMESTAMP,
		pause_reason TEXT,
		upgraded_to_id BIGINT,
		upgraded_from_id BIGINT,
		used_sessions INTEGER NOT NULL DEFAULT 0,
		paid_amount NUMERIC NOT NULL DEFAULT 0,
		credit_applied NUMERIC NOT NULL DEFAULT 0,
		notes TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_member ON subscriptions(member_id, id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT PRIMARY KEY,
		subscription_id BIGINT NOT NULL,
		amount NUMERIC NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_date TIMESTAMP NOT NULL,
		reference_number TEXT,
		notes TEXT,
		receipt_number TEXT NOT NULL,
		refund_of_id BIGINT,
		refunded_amount NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_receipt_number ON payments(receipt_number)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_subscription ON payments(subscription_id, payment_status)`,
}

// ApplySQLite creates the ledger tables on a sqlite connection.
func ApplySQLite(conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
