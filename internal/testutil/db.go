// Package testutil provides sqlite-backed fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens an isolated in-memory database with the ledger schema. The pool
// is capped at one connection, so code under test must route every statement
// inside a transaction through the transaction handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySQLite(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// NewNode returns a snowflake node for fixtures.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

type PlanFixture struct {
	Name           string
	Price          string
	SessionsCount  int
	DurationMonths *int
	SignupFee      string
	Collaboration  bool
}

func InsertPlan(t *testing.T, db *gorm.DB, id snowflake.ID, p PlanFixture) {
	t.Helper()
	fee := p.SignupFee
	if fee == "" {
		fee = "0"
	}
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO plans (id, name, price, sessions_count, duration_months, signup_fee, is_collaboration_plan, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Name, decimal.RequireFromString(p.Price), p.SessionsCount, p.DurationMonths,
		decimal.RequireFromString(fee), p.Collaboration, now, now,
	).Error
	if err != nil {
		t.Fatalf("insert plan: %v", err)
	}
}

func InsertMember(t *testing.T, db *gorm.DB, id snowflake.ID, memberType, status string) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO members (id, name, member_type, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '{}', ?, ?)`,
		id, fmt.Sprintf("member-%d", id), memberType, status, now, now,
	).Error
	if err != nil {
		t.Fatalf("insert member: %v", err)
	}
}

// IntPtr is a convenience for optional integer fixture fields.
func IntPtr(v int) *int { return &v }
