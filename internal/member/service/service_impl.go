package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/member/domain"
	"github.com/smallbiznis/studioledger/internal/validation"
	"github.com/smallbiznis/studioledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMemberRequest) (domain.Member, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		return domain.Member{}, err
	}

	memberType := domain.MemberType(req.MemberType)
	if memberType == "" {
		memberType = domain.MemberTypeTrial
	}
	status := domain.MemberStatusActive
	if memberType == domain.MemberTypeTrial {
		status = domain.MemberStatusPending
	}

	now := s.clock.Now()
	member := domain.Member{
		ID:         s.genID.Generate(),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      strings.TrimSpace(req.Phone),
		MemberType: memberType,
		Status:     status,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Member{}, domain.ErrMemberEmailTaken
		}
		return domain.Member{}, err
	}

	s.log.Info("member created",
		zap.String("member_id", member.ID.String()),
		zap.String("member_type", string(member.MemberType)),
	)
	return member, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Member, error) {
	memberID, err := validation.ParseID("member_id", id)
	if err != nil {
		return domain.Member{}, err
	}

	member, err := s.repo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return *member, nil
}
