package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1234"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1234", cursor.ID)
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(r *row) string { return r.id }

	info := BuildCursorPageInfo([]*row{{"3"}, {"2"}}, 2, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo([]*row{{"3"}, {"2"}, {"1"}}, 2, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)
}
