package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2026, 9, 1, 12, 30, 0, 123456789, time.FixedZone("IST", 19800)),
		ID:        uuid.New(),
	}
	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "/")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, time.UTC, out.CreatedAt.Location())
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorEmpty(t *testing.T) {
	cursor, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm8tc2VwYXJhdG9y", "eA|eQ"} {
		_, err := ParseCursor(raw)
		require.Error(t, err, raw)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3, 4}

	page, more := Trim(rows, 3)
	assert.Equal(t, []int{1, 2, 3}, page)
	assert.True(t, more)

	page, more = Trim(rows, 10)
	assert.Equal(t, rows, page)
	assert.False(t, more)
}
