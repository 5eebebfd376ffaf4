package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/member/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO members (id, name, email, phone, member_type, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.Name,
		member.Email,
		member.Phone,
		member.MemberType,
		member.Status,
		member.Metadata,
		member.CreatedAt,
		member.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, COALESCE(email, '') AS email, COALESCE(phone, '') AS phone,
		        member_type, status, metadata, created_at, updated_at
		 FROM members WHERE id = ?`,
		id,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) PromoteTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE members
		 SET member_type = ?, status = ?, updated_at = ?
		 WHERE id = ? AND member_type = ?`,
		domain.MemberTypeFull,
		domain.MemberStatusActive,
		now,
		id,
		domain.MemberTypeTrial,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
