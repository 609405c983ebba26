// Package systemlog implements the append-only, queryable system log
// (C3): every entry is written to the KV store under a
// chronologically sortable key and mirrored to the structured logger
// so operators get both an in-app query surface and a standard log
// stream.
package systemlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/models"
)

// MaxScan bounds how many entries list() walks before giving up,
// trading an exact match count for bounded latency (see ListResult).
const MaxScan = 5000

// Sink appends and queries system log entries.
type Sink struct {
	store  kvstore.Store
	logger *slog.Logger
}

// New builds a Sink over the given store, mirroring every write to logger.
func New(store kvstore.Store, logger *slog.Logger) *Sink {
	return &Sink{store: store, logger: logger}
}

// Log appends entry to the KV store and emits it through slog. A KV
// write failure is logged but never propagated: logging must not be
// able to fail the caller's primary operation.
func (s *Sink) Log(ctx context.Context, entry models.SystemLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mirror(entry)

	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("systemlog: marshal entry failed", "error", err)
		return
	}
	timeKey := kvstore.TimeKey(entry.Timestamp.UnixMilli())
	if err := s.store.Set(ctx, kvstore.SystemLogsKey(timeKey, entry.ID), payload); err != nil {
		s.logger.Error("systemlog: write entry failed", "error", err)
	}
}

func (s *Sink) mirror(entry models.SystemLog) {
	attrs := []any{"monitor_id", entry.MonitorID, "monitor_name", entry.MonitorName}
	for k, v := range entry.Metadata {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case models.LogDebug:
		s.logger.Debug(entry.Message, attrs...)
	case models.LogWarn:
		s.logger.Warn(entry.Message, attrs...)
	case models.LogError:
		s.logger.Error(entry.Message, attrs...)
	default:
		s.logger.Info(entry.Message, attrs...)
	}
}

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	Level        models.LogLevel
	MonitorID    string
	TextContains string
	Offset       int
	Limit        int
}

// ListResult carries both the page of entries and the count matched
// within the scan window — an exact value only when the scan did not
// hit MaxScan (see MaxScan).
type ListResult struct {
	Entries             []models.SystemLog
	MatchedWithinScan int
}

// List scans system log entries newest-first, applying Filter in
// memory, and paginates the matches with Offset/Limit.
func (s *Sink) List(ctx context.Context, filter Filter) (ListResult, error) {
	entries, err := s.store.Range(ctx, kvstore.SystemLogsPrefix(), kvstore.RangeOptions{Reverse: true, Limit: MaxScan})
	if err != nil {
		return ListResult{}, err
	}

	var matched []models.SystemLog
	for _, e := range entries {
		var log models.SystemLog
		if err := json.Unmarshal(e.Value, &log); err != nil {
			s.logger.Warn("systemlog: skipping unparsable entry", "key", e.Key, "error", err)
			continue
		}
		if !matches(log, filter) {
			continue
		}
		matched = append(matched, log)
	}

	result := ListResult{MatchedWithinScan: len(matched)}
	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	result.Entries = matched[start:end]
	return result, nil
}

func matches(log models.SystemLog, filter Filter) bool {
	if filter.Level != "" && !strings.EqualFold(string(log.Level), string(filter.Level)) {
		return false
	}
	if filter.MonitorID != "" && log.MonitorID != filter.MonitorID {
		return false
	}
	if filter.TextContains != "" && !strings.Contains(strings.ToLower(log.Message), strings.ToLower(filter.TextContains)) {
		return false
	}
	return true
}

// DeleteOlderThan removes every system log entry with a timestamp
// before cutoff, returning the number of entries removed. Used by the
// maintenance job's 7-day retention sweep.
func (s *Sink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.store.Range(ctx, kvstore.SystemLogsPrefix(), kvstore.RangeOptions{})
	if err != nil {
		return 0, err
	}
	cutoffKey := kvstore.TimeKey(cutoff.UnixMilli())
	deleted := 0
	for _, e := range entries {
		parts := strings.SplitN(e.Key, "\x00", 3)
		if len(parts) < 2 || parts[1] >= cutoffKey {
			continue
		}
		var log models.SystemLog
		if err := json.Unmarshal(e.Value, &log); err != nil {
			continue
		}
		timeKey := kvstore.TimeKey(log.Timestamp.UnixMilli())
		if err := s.store.Delete(ctx, kvstore.SystemLogsKey(timeKey, log.ID)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
