package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetSetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := MonitorsKey("abc")

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, key, []byte(`{"id":"abc"}`)))
	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, string(value))

	require.NoError(t, store.Set(ctx, key, []byte(`{"id":"abc","updated":true}`)))
	value, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc","updated":true}`, string(value))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRangeOrderAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		require.NoError(t, store.Set(ctx, HistoryKey("m1", id), []byte(id)))
	}
	// A key under a different monitor must never show up in m1's scan.
	require.NoError(t, store.Set(ctx, HistoryKey("m2", "x"), []byte("x")))

	entries, err := store.Range(ctx, HistoryPrefix("m1"), RangeOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", string(entries[0].Value))
	assert.Equal(t, "c", string(entries[2].Value))

	entries, err = store.Range(ctx, HistoryPrefix("m1"), RangeOptions{Reverse: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c", string(entries[0].Value))

	entries, err = store.Range(ctx, HistoryPrefix("m1"), RangeOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDeleteRangeCascade(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Set(ctx, HistoryKey("m1", string(rune('a'+i))), []byte("x")))
	}
	require.NoError(t, store.Set(ctx, MonitorsKey("m1"), []byte("cfg")))

	n, err := store.DeleteRange(ctx, HistoryPrefix("m1"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	entries, err := store.Range(ctx, HistoryPrefix("m1"), RangeOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The config itself, a sibling key under a different top-level
	// segment, must survive the history-prefix delete.
	_, err = store.Get(ctx, MonitorsKey("m1"))
	require.NoError(t, err)
}

func TestTimeKeyOrdering(t *testing.T) {
	assert.Less(t, TimeKey(1000), TimeKey(2000))
	assert.Equal(t, 20, len(TimeKey(1)))
}
