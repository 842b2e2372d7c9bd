package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLookup(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("live lookup", func(t *testing.T) {
		params := RecordLookupParams{
			RequestedAddress:      "t1live",
			Address:               "t1live",
			Score:                 67,
			Source:                "live",
			TransactionsRequested: 3,
			TransactionsFetched:   2,
			ShieldedOutputs:       2,
			TotalOutputs:          3,
		}

		lookup, err := store.RecordLookup(ctx, params)
		require.NoError(t, err)
		require.NotNil(t, lookup)

		assert.NotEqual(t, uuid.Nil, lookup.ID)
		assert.Equal(t, "t1live", lookup.RequestedAddress)
		assert.Equal(t, 67, lookup.Score)
		assert.Equal(t, "live", lookup.Source)
		assert.Nil(t, lookup.FallbackReason)
		assert.Equal(t, 3, lookup.TransactionsRequested)
		assert.Equal(t, 2, lookup.TransactionsFetched)
		assert.WithinDuration(t, time.Now(), lookup.CreatedAt, 5*time.Second)

		got, err := store.GetLookup(ctx, lookup.ID)
		require.NoError(t, err)
		assert.Equal(t, lookup.ID, got.ID)
		assert.Equal(t, lookup.Score, got.Score)
	})

	t.Run("fallback lookup", func(t *testing.T) {
		lookup, err := store.RecordLookup(ctx, RecordLookupParams{
			RequestedAddress: "t1empty",
			Address:          "zs1qqq",
			Score:            100,
			Source:           "demo",
			FallbackReason:   "no_transactions",
		})
		require.NoError(t, err)
		require.NotNil(t, lookup.FallbackReason)
		assert.Equal(t, "no_transactions", *lookup.FallbackReason)
	})

	t.Run("score out of range is rejected", func(t *testing.T) {
		_, err := store.RecordLookup(ctx, RecordLookupParams{
			RequestedAddress: "t1bad",
			Address:          "t1bad",
			Score:            101,
			Source:           "live",
		})
		assert.Error(t, err)
	})
}

func TestGetLookup_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	_, err := store.GetLookup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListLookups(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for i, addr := range []string{"t1a", "t1b", "t1a", "t1a"} {
		_, err := store.RecordLookup(ctx, RecordLookupParams{
			RequestedAddress: addr,
			Address:          addr,
			Score:            i * 10,
			Source:           "live",
		})
		require.NoError(t, err)
	}

	all, err := store.ListLookups(ctx, ListLookupsParams{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "most recent first")
	}

	forA, err := store.ListLookups(ctx, ListLookupsParams{RequestedAddress: "t1a", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, forA, 2)
	for _, l := range forA {
		assert.Equal(t, "t1a", l.RequestedAddress)
	}

	count, err := store.CountLookups(ctx, "t1a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	total, err := store.CountLookups(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	none, err := store.ListLookups(ctx, ListLookupsParams{RequestedAddress: "t1none"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPgtextHelpers(t *testing.T) {
	assert.False(t, pgtextFromString("").Valid)

	txt := pgtextFromString("explorer_unavailable")
	assert.True(t, txt.Valid)
	require.NotNil(t, stringPtrFromPgtext(txt))
	assert.Equal(t, "explorer_unavailable", *stringPtrFromPgtext(txt))
	assert.Nil(t, stringPtrFromPgtext(pgtextFromString("")))
}
