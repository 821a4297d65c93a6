package redis

import (
	"context"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/models"
)

func Test_DecrementCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecrementCopies(ctx, "b1", "lib1")
	assert.ErrorIs(t, err, models.ErrBranchEntryNotFound)

	seed(t, s, "b1", "lib1", 1)
	left, err := s.DecrementCopies(ctx, "b1", "lib1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)

	_, err = s.DecrementCopies(ctx, "b1", "lib1")
	assert.ErrorIs(t, err, models.ErrNoAvailableCopies)
	assert.Equal(t, int64(1), streamLen(t, s, StreamDecrementCopies))
}

func Test_IncrementCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.IncrementCopies(ctx, "b1", "lib1")
	assert.ErrorIs(t, err, models.ErrBranchEntryNotFound)

	seed(t, s, "b1", "lib1", 1)
	left, err := s.IncrementCopies(ctx, "b1", "lib1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), left)
	assert.Equal(t, int64(1), streamLen(t, s, StreamIncrementCopies))
}

func Test_AddBranchEntry(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddBranchEntry(ctx, "b1", "lib1", 3))
	assert.Equal(t, int64(3), availability(t, s, "b1", "lib1"))

	err := s.AddBranchEntry(ctx, "b1", "lib1", 5)
	assert.ErrorIs(t, err, models.ErrLibraryEntryAlreadyExists)
	assert.Equal(t, int64(3), availability(t, s, "b1", "lib1"))

	msgs, err := s.rdb.XRange(ctx, StreamAddLibrary, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var event map[string]string
	require.NoError(t, jsoniter.ConfigFastest.UnmarshalFromString(msgs[0].Values["data"].(string), &event))
	assert.Equal(t, "3", event[models.PayloadInitialValue])
	assert.Equal(t, "lib1", event[models.PayloadLibraryID])
}

func Test_RemoveBranchEntry(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	err := s.RemoveBranchEntry(ctx, "b1", "lib1", 2)
	assert.ErrorIs(t, err, models.ErrBranchEntryNotFound)

	seed(t, s, "b1", "lib1", 2)
	_, err = s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	err = s.RemoveBranchEntry(ctx, "b1", "lib1", 2)
	assert.ErrorIs(t, err, models.ErrCannotRemoveBook)

	_, err = s.CancelReservation(ctx, "u1", "b1", "lib1")
	require.NoError(t, err)
	require.NoError(t, s.RemoveBranchEntry(ctx, "b1", "lib1", 2))

	_, found, err := s.Availability(ctx, "b1", "lib1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), streamLen(t, s, StreamRemoveLibrary))
}

func Test_Scripts_ReloadAfterFlush(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.LoadScripts(ctx))
	seed(t, s, "b1", "lib1", 2)

	require.NoError(t, s.rdb.ScriptFlush(ctx).Err())

	_, err := s.DecrementCopies(ctx, "b1", "lib1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))
}
