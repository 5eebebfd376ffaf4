package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type MemberType string

const (
	MemberTypeTrial         MemberType = "trial"
	MemberTypeFull          MemberType = "full"
	MemberTypeCollaboration MemberType = "collaboration"
)

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type Member struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"not null" json:"name"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	MemberType MemberType        `gorm:"type:varchar(20);not null" json:"member_type"`
	Status     MemberStatus      `gorm:"type:varchar(20);not null" json:"status"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (Member) TableName() string { return "members" }
