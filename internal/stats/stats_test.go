package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, kvstore.Store) {
	t.Helper()
	store, err := kvstore.Open(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	c := cache.New(100, cache.DefaultTTLConfig(), nil)
	return New(store, c), store
}

func putHistory(t *testing.T, store kvstore.Store, monitorID string, ts time.Time, status models.HistoryStatus) {
	t.Helper()
	rec := models.MonitorHistory{ID: ts.Format(time.RFC3339Nano), MonitorID: monitorID, Timestamp: ts, Status: status}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), kvstore.HistoryKey(monitorID, rec.ID), payload))
}

func TestComputeSuccessRate(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now()
	hourStart := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())

	putHistory(t, store, "m1", hourStart.Add(1*time.Second), models.HistorySuccess)
	putHistory(t, store, "m1", hourStart.Add(2*time.Second), models.HistorySuccess)
	putHistory(t, store, "m1", hourStart.Add(3*time.Second), models.HistoryError)

	result, err := engine.Compute(context.Background(), "m1", "site", Period24h)
	require.NoError(t, err)
	require.Len(t, result.Buckets, 24)

	last := result.Buckets[len(result.Buckets)-1]
	assert.Equal(t, 2, last.SuccessCount)
	assert.Equal(t, 1, last.FailureCount)
	assert.InDelta(t, 66.67, last.SuccessRate, 0.01)
}

func TestComputeExcludesOutOfWindowRecords(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now()

	putHistory(t, store, "m1", now.Add(-25*time.Hour), models.HistorySuccess)
	putHistory(t, store, "m1", now.Add(-1*time.Minute), models.HistorySuccess)

	result, err := engine.Compute(context.Background(), "m1", "site", Period24h)
	require.NoError(t, err)

	total := 0
	for _, b := range result.Buckets {
		total += b.SuccessCount + b.FailureCount
	}
	assert.Equal(t, 1, total)
}

func TestComputeEmptyBucketHasZeroRate(t *testing.T) {
	engine, _ := newTestEngine(t)
	result, err := engine.Compute(context.Background(), "m1", "site", Period24h)
	require.NoError(t, err)
	for _, b := range result.Buckets {
		assert.Equal(t, float64(0), b.SuccessRate)
	}
}

func TestComputeIsCached(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Now()
	putHistory(t, store, "m1", now.Add(-1*time.Minute), models.HistorySuccess)

	first, err := engine.Compute(context.Background(), "m1", "site", Period24h)
	require.NoError(t, err)

	putHistory(t, store, "m1", now, models.HistorySuccess)

	second, err := engine.Compute(context.Background(), "m1", "site", Period24h)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func Test7dBucketCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	result, err := engine.Compute(context.Background(), "m1", "site", Period7d)
	require.NoError(t, err)
	assert.Len(t, result.Buckets, 7)
}
