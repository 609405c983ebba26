// Package main is the composition root for sitepulse: it wires
// configuration, storage, the scheduler, and the HTTP API together and
// owns the process lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitepulse/sitepulse/internal/api"
	"github.com/sitepulse/sitepulse/internal/api/handlers"
	"github.com/sitepulse/sitepulse/internal/auth"
	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/config"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/maintenance"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/probe"
	"github.com/sitepulse/sitepulse/internal/scheduler"
	"github.com/sitepulse/sitepulse/internal/stats"
	"github.com/sitepulse/sitepulse/internal/systemlog"
	"github.com/sitepulse/sitepulse/pkg/logger"
)

const serviceName = "sitepulse"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, handlers.Version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: config: %v\n", serviceName, err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: "json", Output: "stdout"})
	log.Info("starting sitepulse", "version", handlers.Version, "port", cfg.Server.Port)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	store, err := kvstore.Open(ctx, cfg.Data.Path)
	if err != nil {
		log.Error("failed to open kv store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	memCache := cache.New(1000, cache.DefaultTTLConfig(), metricsRegistry)
	logs := systemlog.New(store, log)
	authSvc := auth.New(store, auth.Config{
		AdminPassword:      cfg.Auth.AdminPassword,
		SessionExpireHours: cfg.Auth.SessionExpireHours,
		LockoutMinutes:     cfg.Auth.LoginLockoutMinutes,
		MaxLoginAttempts:   cfg.Auth.MaxLoginAttempts,
	}, metricsRegistry)
	statsEngine := stats.New(store, memCache)
	executor := probe.New(time.Duration(cfg.Probe.RequestTimeoutMs)*time.Millisecond, metricsRegistry)

	sched := scheduler.New(store, memCache, executor, logs, log, scheduler.Config{
		MaxConcurrentMonitors: cfg.Probe.MaxConcurrentMonitors,
	}, metricsRegistry)
	sched.Start(ctx)
	defer sched.Stop()

	gcJob := maintenance.New(store, authSvc, logs, log, maintenance.Config{
		HistoryRetentionDays: cfg.Probe.HistoryRetentionDays,
	})
	gcJob.Start(ctx)
	defer gcJob.Stop()

	h := handlers.New(store, memCache, authSvc, sched, statsEngine, logs, cfg)
	router := api.NewRouter(h, api.DefaultRouterConfig(log, metricsRegistry))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited cleanly")
}
