package seed

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/studioledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultPlansSeedsEmptyCatalogOnce(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	n, err := EnsureDefaultPlans(context.Background(), db, node, now)
	require.NoError(t, err)
	assert.Equal(t, len(starterCatalog), n)

	n, err = EnsureDefaultPlans(context.Background(), db, node, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plans`).Scan(&count).Error)
	assert.EqualValues(t, len(starterCatalog), count)

	var collaboration int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM plans WHERE is_collaboration_plan = ?`, true).Scan(&collaboration).Error)
	assert.EqualValues(t, 1, collaboration)
}

func TestEnsureDefaultPlansSkipsPopulatedCatalog(t *testing.T) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	testutil.InsertPlan(t, db, node.Generate(), testutil.PlanFixture{Name: "Custom", Price: "90", SessionsCount: 6})

	n, err := EnsureDefaultPlans(context.Background(), db, node, time.Now())

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureDefaultPlansRequiresHandles(t *testing.T) {
	_, err := EnsureDefaultPlans(context.Background(), nil, testutil.NewNode(t), time.Now())
	assert.Error(t, err)

	_, err = EnsureDefaultPlans(context.Background(), testutil.NewDB(t), nil, time.Now())
	assert.Error(t, err)
}
