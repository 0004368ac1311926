package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/preview"
)

func token(id, versionID string, activates, expires time.Time) preview.Token {
	return preview.Token{
		ID:               id,
		DataSetVersionID: versionID,
		Label:            "reviewer " + id,
		Activates:        activates,
		Expires:          expires,
		CreatedBy:        "analyst@example.com",
		CreatedAt:        activates,
	}
}

func TestTokens_CreateGetList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDataSet(t, s, "v1")

	t1 := token("tok-1", "v1", at(0), at(60))
	t2 := token("tok-2", "v1", at(5), at(120))
	require.NoError(t, s.CreateToken(ctx, t2))
	require.NoError(t, s.CreateToken(ctx, t1))
	require.NoError(t, s.CreateToken(ctx, t1), "create is idempotent")

	got, err := s.GetToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, t1, got)

	list, err := s.ListTokens(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []preview.Token{t1, t2}, list)

	_, err = s.GetToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokens_Delete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDataSet(t, s, "v1")
	require.NoError(t, s.CreateToken(ctx, token("tok-1", "v1", at(0), at(60))))

	require.NoError(t, s.DeleteToken(ctx, "tok-1"))
	assert.ErrorIs(t, s.DeleteToken(ctx, "tok-1"), ErrNotFound)
}

func TestTokens_DeleteExpired(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDataSet(t, s, "v1")
	require.NoError(t, s.CreateToken(ctx, token("old", "v1", at(0), at(10))))
	require.NoError(t, s.CreateToken(ctx, token("edge", "v1", at(0), at(20))))
	require.NoError(t, s.CreateToken(ctx, token("live", "v1", at(0), at(30))))

	n, err := s.DeleteExpiredTokens(ctx, at(20))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListTokens(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].ID)
}

func TestTokens_CascadeWithVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDataSet(t, s, "v1")
	require.NoError(t, s.CreateToken(ctx, token("tok-1", "v1", at(0), at(60))))
	require.NoError(t, s.DeleteVersion(ctx, "v1"))

	_, err := s.GetToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
