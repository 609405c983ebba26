package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/sitepulse/internal/api/handlers"
	"github.com/sitepulse/sitepulse/internal/auth"
	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/config"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/probe"
	"github.com/sitepulse/sitepulse/internal/scheduler"
	"github.com/sitepulse/sitepulse/internal/stats"
	"github.com/sitepulse/sitepulse/internal/systemlog"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := kvstore.Open(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memCache := cache.New(100, cache.DefaultTTLConfig(), nil)
	authSvc := auth.New(store, auth.Config{AdminPassword: "admin123", SessionExpireHours: 24, LockoutMinutes: 15, MaxLoginAttempts: 5}, nil)
	logs := systemlog.New(store, logger)
	executor := probe.New(0, nil)
	sched := scheduler.New(store, memCache, executor, logs, logger, scheduler.Config{MaxConcurrentMonitors: 5}, nil)
	statsEngine := stats.New(store, memCache)
	cfg := &config.Config{
		Probe: config.ProbeConfig{DefaultMonitorInterval: 5, MinMonitorInterval: 1, MaxMonitorInterval: 60},
		Auth:  config.AuthConfig{SessionExpireHours: 24, AdminPassword: "admin123"},
	}
	h := handlers.New(store, memCache, authSvc, sched, statsEngine, logs, cfg)
	reg := metrics.New(prometheus.NewRegistry())

	return NewRouter(h, DefaultRouterConfig(logger, reg))
}

func TestRouterRejectsUnauthenticatedMonitorAccess(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterLoginThenAccessMonitors(t *testing.T) {
	router := newTestRouter(t)

	loginBody, _ := json.Marshal(map[string]string{"password": "admin123"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	loginReq.Header.Set("Origin", "http://"+loginReq.Host)
	loginW := httptest.NewRecorder()
	router.ServeHTTP(loginW, loginReq)
	require.Equal(t, http.StatusOK, loginW.Code)

	cookies := loginW.Result().Cookies()
	require.NotEmpty(t, cookies)

	monitorsReq := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	for _, c := range cookies {
		monitorsReq.AddCookie(c)
	}
	monitorsW := httptest.NewRecorder()
	router.ServeHTTP(monitorsW, monitorsReq)

	assert.Equal(t, http.StatusOK, monitorsW.Code)
}

func TestRouterSecurityHeadersPresent(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
