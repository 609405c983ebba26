// Package maintenance implements the periodic garbage-collection job
// (C9): expired sessions, stale history, and old system logs are swept
// in three independent goroutines so that one sweep's failure never
// blocks the others.
package maintenance

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sitepulse/sitepulse/internal/auth"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/models"
	"github.com/sitepulse/sitepulse/internal/systemlog"
)

const defaultInterval = time.Hour
const systemLogRetention = 7 * 24 * time.Hour

// Config tunes retention periods.
type Config struct {
	HistoryRetentionDays int
	Interval             time.Duration
}

// Job runs the three GC sweeps on startup and then on Config.Interval.
type Job struct {
	store  kvstore.Store
	auth   *auth.Service
	logs   *systemlog.Sink
	logger *slog.Logger
	cfg    Config

	stop chan struct{}
	done chan struct{}
}

// New builds a Job. Call Start to run it.
func New(store kvstore.Store, authSvc *auth.Service, logs *systemlog.Sink, logger *slog.Logger, cfg Config) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistoryRetentionDays <= 0 {
		cfg.HistoryRetentionDays = 30
	}
	return &Job{
		store:  store,
		auth:   authSvc,
		logs:   logs,
		logger: logger,
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// sweepResult collects one sweep's outcome for the summary log.
type sweepResult struct {
	name    string
	deleted int
	err     error
}

// Start runs once immediately, then on Config.Interval, until Stop.
func (j *Job) Start(ctx context.Context) {
	go func() {
		defer close(j.done)
		j.runSweeps(ctx)

		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.runSweeps(ctx)
			case <-j.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the job and waits for any in-flight run to finish.
func (j *Job) Stop() {
	close(j.stop)
	<-j.done
}

func (j *Job) runSweeps(ctx context.Context) {
	var wg sync.WaitGroup
	results := make([]sweepResult, 3)

	wg.Add(3)
	go func() {
		defer wg.Done()
		n, err := j.auth.SweepExpiredSessions(ctx)
		results[0] = sweepResult{name: "sessions", deleted: n, err: err}
	}()
	go func() {
		defer wg.Done()
		n, err := j.sweepOldHistory(ctx)
		results[1] = sweepResult{name: "history", deleted: n, err: err}
	}()
	go func() {
		defer wg.Done()
		n, err := j.logs.DeleteOlderThan(ctx, time.Now().UTC().Add(-systemLogRetention))
		results[2] = sweepResult{name: "system_logs", deleted: n, err: err}
	}()
	wg.Wait()

	total := 0
	for _, r := range results {
		if r.err != nil {
			j.logger.Error("maintenance: sweep failed", "sweep", r.name, "error", r.err)
			continue
		}
		total += r.deleted
	}
	j.logger.Info("maintenance: sweep complete",
		"sessions_deleted", results[0].deleted,
		"history_deleted", results[1].deleted,
		"system_logs_deleted", results[2].deleted,
		"total_deleted", total,
	)
}

// sweepOldHistory deletes every history record across all monitors
// whose timestamp precedes the retention cutoff.
func (j *Job) sweepOldHistory(ctx context.Context) (int, error) {
	entries, err := j.store.Range(ctx, kvstore.Key{"history"}, kvstore.RangeOptions{})
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(j.cfg.HistoryRetentionDays) * 24 * time.Hour)
	deleted := 0
	for _, e := range entries {
		var record models.MonitorHistory
		if err := json.Unmarshal(e.Value, &record); err != nil {
			continue
		}
		if record.Timestamp.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, kvstore.HistoryKey(record.MonitorID, record.ID)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
