package crm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConditionalMutations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r, err := s.Put(ctx, Record{Name: "Meera", Contact: "meera@example.com", Consent: true, StallID: "s1"})
	require.NoError(t, err)

	changed, err := s.Relabel(ctx, r.ID, "s2", DeletedStoreLabel)
	require.NoError(t, err)
	assert.False(t, changed, "record moved to another stall is untouched")

	changed, err = s.Relabel(ctx, r.ID, "s1", DeletedStoreLabel)
	require.NoError(t, err)
	assert.True(t, changed)
	got, _ := s.Get(ctx, r.ID)
	assert.Equal(t, DeletedStoreLabel, got.StallID)

	removed, err := s.Delete(ctx, r.ID, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = s.Delete(ctx, r.ID, DeletedStoreLabel)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
