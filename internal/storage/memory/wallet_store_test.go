package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/storage"
	"github.com/cardano-portfolio/internal/types"
)

func TestWalletStore_CreateOrReactivate(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	w, err := store.CreateOrReactivate(ctx, &models.Wallet{StakeAddress: "stake1a", ThresholdBasis: types.BasisUSD, DeviationThresholdPctPoints: 5})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)
	assert.True(t, w.Active)

	require.NoError(t, store.Deactivate(ctx, w.ID))
	page, err := store.ListActive(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	again, err := store.CreateOrReactivate(ctx, &models.Wallet{StakeAddress: "stake1a", DisplayName: "main", ThresholdBasis: types.BasisBTC})
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.True(t, again.Active)
	assert.Equal(t, "main", again.DisplayName)
	assert.Equal(t, types.BasisUSD, again.ThresholdBasis, "settings survive reactivation")

	_, err = store.CreateOrReactivate(ctx, &models.Wallet{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestWalletStore_ListActivePaging(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	var ids []string
	for _, addr := range []string{"stake1a", "stake1b", "stake1c"} {
		w, err := store.CreateOrReactivate(ctx, &models.Wallet{StakeAddress: addr})
		require.NoError(t, err)
		ids = append(ids, w.ID)
	}

	first, err := store.ListActive(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].ID)
	assert.Equal(t, ids[1], first[1].ID)

	rest, err := store.ListActive(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].ID)

	empty, err := store.ListActive(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWalletStore_CopyOnRead(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	w, err := store.CreateOrReactivate(ctx, &models.Wallet{StakeAddress: "stake1a", DisplayName: "x"})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	got.DisplayName = "mutated"

	again, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again.DisplayName)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Deactivate(ctx, "missing"), storage.ErrNotFound)
}
