package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/member/domain"
	"github.com/smallbiznis/studioledger/internal/member/repository"
	"github.com/smallbiznis/studioledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type spyRepo struct {
	domain.Repository
	promoteCalls int
	promoteErr   error
}

func (r *spyRepo) PromoteTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	r.promoteCalls++
	if r.promoteErr != nil {
		return false, r.promoteErr
	}
	return r.Repository.PromoteTrial(ctx, db, id, now)
}

func newPromoter(db *gorm.DB, repo domain.Repository) domain.Promoter {
	return NewPromoter(PromoterParams{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repo,
	})
}

func TestPromoteIfTrialPromotesOnce(t *testing.T) {
	db := testutil.NewDB(t)
	id := testutil.NewNode(t).Generate()
	testutil.InsertMember(t, db, id, "trial", "pending")

	spy := &spyRepo{Repository: repository.Provide()}
	promoter := newPromoter(db, spy)

	promoter.PromoteIfTrial(context.Background(), id)

	member, err := repository.Provide().FindByID(context.Background(), db, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberTypeFull, member.MemberType)
	assert.Equal(t, domain.MemberStatusActive, member.Status)
	assert.Equal(t, 1, spy.promoteCalls)

	promoter.PromoteIfTrial(context.Background(), id)
	assert.Equal(t, 1, spy.promoteCalls, "a full member must not be written again")
}

func TestPromoteIfTrialSkipsCollaborationMembers(t *testing.T) {
	db := testutil.NewDB(t)
	id := testutil.NewNode(t).Generate()
	testutil.InsertMember(t, db, id, "collaboration", "active")

	spy := &spyRepo{Repository: repository.Provide()}
	newPromoter(db, spy).PromoteIfTrial(context.Background(), id)

	member, err := repository.Provide().FindByID(context.Background(), db, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberTypeCollaboration, member.MemberType)
	assert.Zero(t, spy.promoteCalls)
}

func TestPromoteIfTrialSwallowsFailures(t *testing.T) {
	db := testutil.NewDB(t)
	id := testutil.NewNode(t).Generate()
	testutil.InsertMember(t, db, id, "trial", "pending")

	spy := &spyRepo{Repository: repository.Provide(), promoteErr: errors.New("db down")}
	promoter := newPromoter(db, spy)

	assert.NotPanics(t, func() {
		promoter.PromoteIfTrial(context.Background(), id)
		promoter.PromoteIfTrial(context.Background(), testutil.NewNode(t).Generate())
	})
	assert.Equal(t, 1, spy.promoteCalls)
}
