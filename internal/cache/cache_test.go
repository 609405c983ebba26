package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/sitepulse/internal/metrics"
)

func TestGetSetDelete(t *testing.T) {
	c := New(100, DefaultTTLConfig(), nil)

	_, ok := c.Get(BucketConfigs, AllMonitorConfigsKey)
	assert.False(t, ok)

	c.Set(BucketConfigs, AllMonitorConfigsKey, []byte("payload"))
	value, ok := c.Get(BucketConfigs, AllMonitorConfigsKey)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(value))

	c.Delete(BucketConfigs, AllMonitorConfigsKey)
	_, ok = c.Get(BucketConfigs, AllMonitorConfigsKey)
	assert.False(t, ok)
}

func TestBucketIsolation(t *testing.T) {
	c := New(100, DefaultTTLConfig(), nil)
	c.Set(BucketConfigs, "k", []byte("config-value"))
	c.Set(BucketHistory, "k", []byte("history-value"))

	c.Clear(BucketConfigs)

	_, ok := c.Get(BucketConfigs, "k")
	assert.False(t, ok)
	value, ok := c.Get(BucketHistory, "k")
	assert.True(t, ok)
	assert.Equal(t, "history-value", string(value))
}

func TestExpiry(t *testing.T) {
	c := New(100, TTLConfig{Configs: 20 * time.Millisecond, History: time.Minute, Stats: time.Minute, Logs: time.Minute}, nil)
	c.Set(BucketConfigs, "k", []byte("v"))

	_, ok := c.Get(BucketConfigs, "k")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get(BucketConfigs, "k")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	c := New(100, DefaultTTLConfig(), nil)
	c.Set(BucketConfigs, "a", []byte("1"))
	c.Set(BucketHistory, "b", []byte("2"))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.Keys[string(BucketConfigs)])
	assert.Equal(t, 1, stats.Keys[string(BucketHistory)])
}

func TestClearAll(t *testing.T) {
	c := New(100, DefaultTTLConfig(), nil)
	c.Set(BucketConfigs, "a", []byte("1"))
	c.Set(BucketStats, "b", []byte("2"))

	c.ClearAll()

	assert.Equal(t, 0, c.Stats().Size)
}

func TestGetRecordsHitAndMissMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := New(100, DefaultTTLConfig(), m)

	_, ok := c.Get(BucketConfigs, "missing")
	assert.False(t, ok)

	c.Set(BucketConfigs, "k", []byte("v"))
	_, ok = c.Get(BucketConfigs, "k")
	assert.True(t, ok)

	assert.Equal(t, float64(1), counterValue(t, m.CacheHits.WithLabelValues(string(BucketConfigs))))
	assert.Equal(t, float64(1), counterValue(t, m.CacheMisses.WithLabelValues(string(BucketConfigs))))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}
