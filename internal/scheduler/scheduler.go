// Package scheduler implements the bounded-concurrency tick loop (C5):
// every minute it selects due monitor configs, fans out probes in
// batches of at most MaxConcurrentMonitors, writes results back, and records
// system-log events for the run.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/models"
	"github.com/sitepulse/sitepulse/internal/probe"
	"github.com/sitepulse/sitepulse/internal/systemlog"
)

const tickInterval = time.Minute
const interBatchPause = time.Second

// Config tunes the scheduler's batching behavior.
type Config struct {
	MaxConcurrentMonitors int
}

// Status is a snapshot for GET /api/system/scheduler.
type Status struct {
	IsRunning        bool       `json:"isRunning"`
	ExecutionCount   int64      `json:"executionCount"`
	LastExecutionTime *time.Time `json:"lastExecutionTime,omitempty"`
}

// Scheduler owns the tick loop.
type Scheduler struct {
	store    kvstore.Store
	cache    cache.Cache
	executor *probe.Executor
	logs     *systemlog.Sink
	logger   *slog.Logger
	cfg      Config
	metrics  *metrics.Registry

	running        atomic.Bool
	executionCount atomic.Int64
	lastExecution  atomic.Value // time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a Scheduler. Call Start to begin ticking. reg may be nil,
// in which case tick duration goes unrecorded.
func New(store kvstore.Store, c cache.Cache, executor *probe.Executor, logs *systemlog.Sink, logger *slog.Logger, cfg Config, reg *metrics.Registry) *Scheduler {
	if cfg.MaxConcurrentMonitors <= 0 {
		cfg.MaxConcurrentMonitors = 10
	}
	return &Scheduler{
		store:    store,
		cache:    c,
		executor: executor,
		logs:     logs,
		logger:   logger,
		cfg:      cfg,
		metrics:  reg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop in a background goroutine until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runTick(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the tick loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Status returns a point-in-time snapshot for the system API.
func (s *Scheduler) Status() Status {
	status := Status{
		IsRunning:      s.running.Load(),
		ExecutionCount: s.executionCount.Load(),
	}
	if last, ok := s.lastExecution.Load().(time.Time); ok {
		status.LastExecutionTime = &last
	}
	return status
}

// runTick guards re-entrancy, selects due configs, executes them in
// bounded batches, and writes results back. A panic or error inside
// one config's handling never aborts the others or the next tick.
func (s *Scheduler) runTick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler: tick skipped, previous tick still running")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	s.executionCount.Add(1)
	s.lastExecution.Store(time.Now().UTC())

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: tick panicked", "recover", r)
		}
	}()

	configs, err := s.loadEnabledConfigs(ctx)
	if err != nil {
		s.logger.Error("scheduler: failed to load configs", "error", err)
		return
	}

	due := s.selectDue(configs)
	if len(due) == 0 {
		return
	}

	for start := 0; start < len(due); start += s.cfg.MaxConcurrentMonitors {
		end := start + s.cfg.MaxConcurrentMonitors
		if end > len(due) {
			end = len(due)
		}
		s.runBatch(ctx, due[start:end])
		if end < len(due) {
			time.Sleep(interBatchPause)
		}
	}

	s.cache.Clear(cache.BucketConfigs)
}

func (s *Scheduler) loadEnabledConfigs(ctx context.Context) ([]models.MonitorConfig, error) {
	entries, err := s.store.Range(ctx, kvstore.MonitorsPrefix(), kvstore.RangeOptions{})
	if err != nil {
		return nil, err
	}
	configs := make([]models.MonitorConfig, 0, len(entries))
	for _, e := range entries {
		var cfg models.MonitorConfig
		if err := json.Unmarshal(e.Value, &cfg); err != nil {
			s.logger.Warn("scheduler: skipping unparsable config", "key", e.Key, "error", err)
			continue
		}
		if cfg.Enabled {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

func (s *Scheduler) selectDue(configs []models.MonitorConfig) []models.MonitorConfig {
	now := time.Now().UTC()
	due := make([]models.MonitorConfig, 0, len(configs))
	for _, cfg := range configs {
		if isDue(cfg, now) {
			due = append(due, cfg)
			continue
		}
		next := nextExecution(cfg)
		s.logger.Debug("scheduler: config not due", "monitor_id", cfg.ID, "next_execution", next)
	}
	return due
}

func isDue(cfg models.MonitorConfig, now time.Time) bool {
	if cfg.LastCheckAt == nil {
		return true
	}
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	return now.Sub(*cfg.LastCheckAt) >= interval
}

func nextExecution(cfg models.MonitorConfig) time.Time {
	if cfg.LastCheckAt == nil {
		return time.Now().UTC()
	}
	return cfg.LastCheckAt.Add(time.Duration(cfg.IntervalMinutes) * time.Minute)
}

func (s *Scheduler) runBatch(ctx context.Context, batch []models.MonitorConfig) {
	var wg sync.WaitGroup
	for _, cfg := range batch {
		wg.Add(1)
		go func(cfg models.MonitorConfig) {
			defer wg.Done()
			s.runOne(ctx, cfg)
		}(cfg)
	}
	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, cfg models.MonitorConfig) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: probe panicked", "monitor_id", cfg.ID, "recover", r)
		}
	}()

	s.logs.Log(ctx, models.SystemLog{Level: models.LogInfo, Message: "probe started", MonitorID: cfg.ID, MonitorName: cfg.Name})

	result := s.executor.Execute(ctx, cfg)

	level := models.LogInfo
	if result.Status == models.HistoryError {
		level = models.LogWarn
	}
	s.logs.Log(ctx, models.SystemLog{
		Level:       level,
		Message:     fmt.Sprintf("probe finished: %s", result.Status),
		MonitorID:   cfg.ID,
		MonitorName: cfg.Name,
		Metadata:    map[string]interface{}{"error": result.Error},
	})

	now := time.Now().UTC()
	history := models.MonitorHistory{
		ID:             uuid.New().String(),
		MonitorID:      cfg.ID,
		Timestamp:      now,
		Status:         result.Status,
		HTTPStatus:     result.HTTPStatus,
		Error:          result.Error,
	}
	if result.ResponseTimeMs > 0 {
		history.ResponseTimeMs = &result.ResponseTimeMs
	}

	payload, err := json.Marshal(history)
	if err != nil {
		s.logger.Error("scheduler: marshal history failed", "monitor_id", cfg.ID, "error", err)
		return
	}
	if err := s.store.Set(ctx, kvstore.HistoryKey(cfg.ID, history.ID), payload); err != nil {
		s.logger.Error("scheduler: write history failed", "monitor_id", cfg.ID, "error", err)
		return
	}

	cfg.LastCheckAt = &now
	cfg.Status = models.MonitorStatus(result.Status)
	cfg.LastError = result.Error
	cfg.UpdatedAt = now
	cfgPayload, err := json.Marshal(cfg)
	if err != nil {
		s.logger.Error("scheduler: marshal config failed", "monitor_id", cfg.ID, "error", err)
		return
	}
	if err := s.store.Set(ctx, kvstore.MonitorsKey(cfg.ID), cfgPayload); err != nil {
		s.logger.Error("scheduler: write-back failed", "monitor_id", cfg.ID, "error", err)
	}
}
