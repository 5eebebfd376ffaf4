package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateMemberRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"omitempty,max=50"`
	MemberType string `json:"member_type" validate:"omitempty,oneof=trial full collaboration"`
}

type Service interface {
	Create(ctx context.Context, req CreateMemberRequest) (Member, error)
	GetByID(ctx context.Context, id string) (Member, error)
}

// Promoter upgrades trial members after their first purchase. It never
// reports failure to the caller.
type Promoter interface {
	PromoteIfTrial(ctx context.Context, memberID snowflake.ID)
}

var (
	ErrMemberNotFound   = errors.New("member_not_found")
	ErrMemberEmailTaken = errors.New("member_email_taken")
)
