// Package stats implements the bucketed history aggregation engine
// (C7): given a monitor and a period, it buckets history records into
// hourly (24h) or daily (7d) windows and computes a success rate per
// bucket, cached through internal/cache.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/models"
)

// Period is one of the two supported aggregation windows.
type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
)

// Bucket is one time-aligned window of history for a monitor.
type Bucket struct {
	Label        string    `json:"label"`
	BucketStart  time.Time `json:"bucket_start"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	SuccessRate  float64   `json:"success_rate"`
}

// MonitorStats is the response shape for /api/stats and
// /api/monitors/:id/stats.
type MonitorStats struct {
	MonitorID   string   `json:"monitor_id"`
	MonitorName string   `json:"monitor_name"`
	Period      Period   `json:"period"`
	Buckets     []Bucket `json:"buckets"`
}

// Engine computes and caches MonitorStats.
type Engine struct {
	store kvstore.Store
	cache cache.Cache
}

// New builds an Engine over store, caching results in c.
func New(store kvstore.Store, c cache.Cache) *Engine {
	return &Engine{store: store, cache: c}
}

func cacheKey(monitorID string, period Period) string {
	return fmt.Sprintf("%s:%s", monitorID, period)
}

// Compute returns MonitorStats for monitorID over period, serving from
// cache when present.
func (e *Engine) Compute(ctx context.Context, monitorID, monitorName string, period Period) (MonitorStats, error) {
	key := cacheKey(monitorID, period)
	if cached, ok := e.cache.Get(cache.BucketStats, key); ok {
		var stats MonitorStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return stats, nil
		}
	}

	now := time.Now()
	buckets := newBuckets(now, period)
	windowStart := buckets[0].BucketStart

	entries, err := e.store.Range(ctx, kvstore.HistoryPrefix(monitorID), kvstore.RangeOptions{Reverse: true})
	if err != nil {
		return MonitorStats{}, err
	}

	for _, entry := range entries {
		var record models.MonitorHistory
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			continue
		}
		if record.Timestamp.Before(windowStart) {
			break // reverse time order: everything older is out of the window
		}
		idx := bucketIndex(buckets, record.Timestamp)
		if idx < 0 {
			continue
		}
		if record.Status == models.HistorySuccess {
			buckets[idx].SuccessCount++
		} else {
			buckets[idx].FailureCount++
		}
	}

	for i := range buckets {
		total := buckets[i].SuccessCount + buckets[i].FailureCount
		if total == 0 {
			buckets[i].SuccessRate = 0
			continue
		}
		rate := float64(buckets[i].SuccessCount) / float64(total) * 100
		buckets[i].SuccessRate = math.Round(rate*100) / 100
	}

	stats := MonitorStats{MonitorID: monitorID, MonitorName: monitorName, Period: period, Buckets: buckets}

	if payload, err := json.Marshal(stats); err == nil {
		e.cache.Set(cache.BucketStats, key, payload)
	}
	return stats, nil
}

// newBuckets builds the ordered, empty bucket list for period, aligned
// to the top of the hour (24h) or local midnight (7d), oldest first.
func newBuckets(now time.Time, period Period) []Bucket {
	switch period {
	case Period7d:
		buckets := make([]Bucket, 7)
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start := midnight.AddDate(0, 0, -6)
		for i := 0; i < 7; i++ {
			day := start.AddDate(0, 0, i)
			buckets[i] = Bucket{Label: fmt.Sprintf("%d/%d", day.Month(), day.Day()), BucketStart: day}
		}
		return buckets
	default:
		buckets := make([]Bucket, 24)
		topOfHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		start := topOfHour.Add(-23 * time.Hour)
		for i := 0; i < 24; i++ {
			hour := start.Add(time.Duration(i) * time.Hour)
			buckets[i] = Bucket{Label: fmt.Sprintf("%02d:00", hour.Hour()), BucketStart: hour}
		}
		return buckets
	}
}

// bucketIndex returns the last bucket whose start is at or before ts,
// i.e. the bucket ts falls into given buckets are contiguous and
// sorted oldest-first. -1 if ts precedes the first bucket.
func bucketIndex(buckets []Bucket, ts time.Time) int {
	for i := len(buckets) - 1; i >= 0; i-- {
		if !ts.Before(buckets[i].BucketStart) {
			return i
		}
	}
	return -1
}
