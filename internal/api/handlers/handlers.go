// Package handlers implements the HTTP API surface (C8): monitor CRUD,
// live status, stats, history, system introspection, and session
// auth, all responding through the shared envelope.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sitepulse/sitepulse/internal/api/errors"
	"github.com/sitepulse/sitepulse/internal/api/middleware"
	"github.com/sitepulse/sitepulse/internal/auth"
	"github.com/sitepulse/sitepulse/internal/cache"
	"github.com/sitepulse/sitepulse/internal/config"
	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/models"
	"github.com/sitepulse/sitepulse/internal/scheduler"
	"github.com/sitepulse/sitepulse/internal/stats"
	"github.com/sitepulse/sitepulse/internal/systemlog"
)

// Version is the API/service version reported by /api/system/info.
const Version = "1.0.0"

// Handlers bundles every dependency the route functions need.
type Handlers struct {
	Store     kvstore.Store
	Cache     cache.Cache
	Auth      *auth.Service
	Scheduler *scheduler.Scheduler
	Stats     *stats.Engine
	Logs      *systemlog.Sink
	Config    *config.Config
	StartedAt time.Time
}

// New builds a Handlers bundle.
func New(store kvstore.Store, c cache.Cache, authSvc *auth.Service, sched *scheduler.Scheduler, statsEngine *stats.Engine, logs *systemlog.Sink, cfg *config.Config) *Handlers {
	return &Handlers{
		Store:     store,
		Cache:     c,
		Auth:      authSvc,
		Scheduler: sched,
		Stats:     statsEngine,
		Logs:      logs,
		Config:    cfg,
		StartedAt: time.Now().UTC(),
	}
}

// ---- auth ----

// LoginRequest is the POST /api/login request body.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

func validationMessage(err error) string {
	fields := middleware.FormatValidationErrors(err)
	if len(fields) == 0 {
		return err.Error()
	}
	return fields[0].Field + ": " + fields[0].Hint
}

// Login handles POST /api/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.Validation("请求体不是合法的 JSON"))
		return
	}
	if err := middleware.ValidateStruct(req); err != nil {
		errors.WriteError(w, errors.Validation(validationMessage(err)))
		return
	}

	ip := auth.ClientIP(r)
	token, session, err := h.Auth.Login(r.Context(), ip, req.Password)
	if err != nil {
		switch err {
		case auth.ErrTooManyAttempts:
			errors.WriteError(w, errors.RateLimited(err.Error()))
		case auth.ErrInvalidPassword:
			errors.WriteError(w, errors.AuthFailed(err.Error()))
		default:
			errors.WriteError(w, errors.Database("登录失败"))
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   h.Config.Auth.SessionExpireHours * 3600,
	})
	errors.WriteData(w, http.StatusOK, map[string]any{"authenticated": true, "session": session})
}

// Logout handles POST /api/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		_ = h.Auth.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	errors.WriteData(w, http.StatusOK, map[string]any{"success": true})
}

// AuthCheck handles GET /api/auth/check.
func (h *Handlers) AuthCheck(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		errors.WriteData(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	session, err := h.Auth.Check(r.Context(), cookie.Value)
	if err != nil || session == nil {
		errors.WriteData(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	errors.WriteData(w, http.StatusOK, map[string]any{"authenticated": true, "session": session})
}

// ---- monitors ----

// MonitorConfigRequest is the POST /api/monitors request body.
type MonitorConfigRequest struct {
	Name            string            `json:"name" validate:"required"`
	URL             string            `json:"url" validate:"required"`
	Method          string            `json:"method"`
	Cookie          string            `json:"cookie"`
	Headers         map[string]string `json:"headers"`
	IntervalMinutes int               `json:"interval_minutes"`
	Enabled         *bool             `json:"enabled"`
}

// MonitorConfigUpdateRequest is the PUT /api/monitors/:id request body;
// every field is optional and only supplied fields are applied.
type MonitorConfigUpdateRequest struct {
	Name            *string           `json:"name"`
	URL             *string           `json:"url"`
	Method          *string           `json:"method"`
	Cookie          *string           `json:"cookie"`
	Headers         map[string]string `json:"headers"`
	IntervalMinutes *int              `json:"interval_minutes"`
	Enabled         *bool             `json:"enabled"`
}

// ListMonitors handles GET /api/monitors.
func (h *Handlers) ListMonitors(w http.ResponseWriter, r *http.Request) {
	configs, err := h.loadAllConfigs(r.Context())
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控配置失败"))
		return
	}
	errors.WriteData(w, http.StatusOK, configs)
}

// CreateMonitor handles POST /api/monitors.
func (h *Handlers) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req MonitorConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.Validation("请求体不是合法的 JSON"))
		return
	}
	if err := middleware.ValidateStruct(req); err != nil {
		errors.WriteError(w, errors.Validation(validationMessage(err)))
		return
	}
	if !config.ValidateURL(req.URL) {
		errors.WriteError(w, errors.Validation("url 不是合法的绝对地址"))
		return
	}

	interval := req.IntervalMinutes
	if interval == 0 {
		interval = h.Config.Probe.DefaultMonitorInterval
	}
	if interval < h.Config.Probe.MinMonitorInterval || interval > h.Config.Probe.MaxMonitorInterval {
		errors.WriteError(w, errors.Validation("interval_minutes 超出允许范围"))
		return
	}

	method := models.MethodGET
	if req.Method != "" {
		method = models.Method(req.Method)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	cfg := models.MonitorConfig{
		ID:              uuid.New().String(),
		Name:            req.Name,
		URL:             req.URL,
		Method:          method,
		Cookie:          req.Cookie,
		Headers:         req.Headers,
		IntervalMinutes: interval,
		Enabled:         enabled,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.putConfig(r.Context(), cfg); err != nil {
		errors.WriteError(w, errors.Database("保存监控配置失败"))
		return
	}
	h.Cache.Clear(cache.BucketConfigs)
	errors.WriteData(w, http.StatusCreated, cfg)
}

// UpdateMonitor handles PUT /api/monitors/:id.
func (h *Handlers) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := h.loadConfig(r.Context(), id)
	if err != nil {
		errors.WriteError(w, errors.NotFound("未找到指定的监控"))
		return
	}

	var req MonitorConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.Validation("请求体不是合法的 JSON"))
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			errors.WriteError(w, errors.Validation("name 不能为空"))
			return
		}
		cfg.Name = *req.Name
	}
	if req.URL != nil {
		if !config.ValidateURL(*req.URL) {
			errors.WriteError(w, errors.Validation("url 不是合法的绝对地址"))
			return
		}
		cfg.URL = *req.URL
	}
	if req.Method != nil {
		cfg.Method = models.Method(*req.Method)
	}
	if req.Cookie != nil {
		cfg.Cookie = *req.Cookie
	}
	if req.Headers != nil {
		cfg.Headers = req.Headers
	}
	if req.IntervalMinutes != nil {
		if *req.IntervalMinutes < h.Config.Probe.MinMonitorInterval || *req.IntervalMinutes > h.Config.Probe.MaxMonitorInterval {
			errors.WriteError(w, errors.Validation("interval_minutes 超出允许范围"))
			return
		}
		cfg.IntervalMinutes = *req.IntervalMinutes
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := h.putConfig(r.Context(), cfg); err != nil {
		errors.WriteError(w, errors.Database("保存监控配置失败"))
		return
	}
	h.Cache.Clear(cache.BucketConfigs)
	errors.WriteData(w, http.StatusOK, cfg)
}

// DeleteMonitor handles DELETE /api/monitors/:id, cascading to the
// monitor's full history range.
func (h *Handlers) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.loadConfig(r.Context(), id); err != nil {
		errors.WriteError(w, errors.NotFound("未找到指定的监控"))
		return
	}

	if err := h.Store.Delete(r.Context(), kvstore.MonitorsKey(id)); err != nil {
		errors.WriteError(w, errors.Database("删除监控配置失败"))
		return
	}
	if _, err := h.Store.DeleteRange(r.Context(), kvstore.HistoryPrefix(id)); err != nil {
		errors.WriteError(w, errors.Database("删除监控历史失败"))
		return
	}
	h.Cache.Clear(cache.BucketConfigs)
	h.Cache.Clear(cache.BucketHistory)
	h.Cache.Clear(cache.BucketStats)
	errors.WriteData(w, http.StatusOK, map[string]any{"deleted": true})
}

// monitorStatusView is one row of GET /api/monitors/status.
type monitorStatusView struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Enabled   bool                 `json:"enabled"`
	Status    models.MonitorStatus `json:"status"`
	LastCheck *time.Time           `json:"last_check,omitempty"`
	LastError string               `json:"last_error,omitempty"`
}

// MonitorsStatus handles GET /api/monitors/status.
func (h *Handlers) MonitorsStatus(w http.ResponseWriter, r *http.Request) {
	configs, err := h.loadAllConfigs(r.Context())
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控配置失败"))
		return
	}
	views := make([]monitorStatusView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, monitorStatusView{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Enabled:   cfg.Enabled,
			Status:    cfg.Status,
			LastCheck: cfg.LastCheckAt,
			LastError: cfg.LastError,
		})
	}
	errors.WriteData(w, http.StatusOK, views)
}

// ---- stats & history ----

// StatsOverview handles GET /api/stats/overview.
func (h *Handlers) StatsOverview(w http.ResponseWriter, r *http.Request) {
	configs, err := h.loadAllConfigs(r.Context())
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控配置失败"))
		return
	}
	overview := map[string]int{"total": 0, "enabled": 0, "success": 0, "error": 0, "pending": 0}
	for _, cfg := range configs {
		overview["total"]++
		if cfg.Enabled {
			overview["enabled"]++
		}
		switch cfg.Status {
		case models.StatusSuccess:
			overview["success"]++
		case models.StatusError:
			overview["error"]++
		default:
			overview["pending"]++
		}
	}
	errors.WriteData(w, http.StatusOK, overview)
}

// Stats handles GET /api/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	period := parsePeriod(r.URL.Query().Get("period"))
	configs, err := h.loadAllConfigs(r.Context())
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控配置失败"))
		return
	}
	results := make([]stats.MonitorStats, 0, len(configs))
	for _, cfg := range configs {
		s, err := h.Stats.Compute(r.Context(), cfg.ID, cfg.Name, period)
		if err != nil {
			errors.WriteError(w, errors.Database("统计计算失败"))
			return
		}
		results = append(results, s)
	}
	errors.WriteData(w, http.StatusOK, results)
}

// MonitorStats handles GET /api/monitors/:id/stats.
func (h *Handlers) MonitorStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := h.loadConfig(r.Context(), id)
	if err != nil {
		errors.WriteError(w, errors.NotFound("未找到指定的监控"))
		return
	}
	period := parsePeriod(r.URL.Query().Get("period"))
	s, err := h.Stats.Compute(r.Context(), cfg.ID, cfg.Name, period)
	if err != nil {
		errors.WriteError(w, errors.Database("统计计算失败"))
		return
	}
	errors.WriteData(w, http.StatusOK, s)
}

// MonitorHistory handles GET /api/monitors/:id/history.
func (h *Handlers) MonitorHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.loadConfig(r.Context(), id); err != nil {
		errors.WriteError(w, errors.NotFound("未找到指定的监控"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.loadHistory(r.Context(), id, limit)
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控历史失败"))
		return
	}
	errors.WriteData(w, http.StatusOK, history)
}

// loadHistory returns up to limit history entries for a monitor, most
// recent first, serving from BucketHistory when present. The cache key
// includes limit since different limits are different query results.
func (h *Handlers) loadHistory(ctx context.Context, id string, limit int) ([]models.MonitorHistory, error) {
	key := fmt.Sprintf("%s:%d", id, limit)
	if cached, ok := h.Cache.Get(cache.BucketHistory, key); ok {
		var history []models.MonitorHistory
		if err := json.Unmarshal(cached, &history); err == nil {
			return history, nil
		}
	}

	entries, err := h.Store.Range(ctx, kvstore.HistoryPrefix(id), kvstore.RangeOptions{Reverse: true, Limit: limit})
	if err != nil {
		return nil, err
	}

	history := make([]models.MonitorHistory, 0, len(entries))
	for _, e := range entries {
		var record models.MonitorHistory
		if err := json.Unmarshal(e.Value, &record); err != nil {
			continue
		}
		history = append(history, record)
	}

	if payload, err := json.Marshal(history); err == nil {
		h.Cache.Set(cache.BucketHistory, key, payload)
	}
	return history, nil
}

// ---- system ----

// SystemInfo handles GET /api/system/info.
func (h *Handlers) SystemInfo(w http.ResponseWriter, r *http.Request) {
	configs, err := h.loadAllConfigs(r.Context())
	if err != nil {
		errors.WriteError(w, errors.Database("读取监控配置失败"))
		return
	}
	enabled := 0
	for _, cfg := range configs {
		if cfg.Enabled {
			enabled++
		}
	}
	errors.WriteData(w, http.StatusOK, map[string]any{
		"version":         Version,
		"totalMonitors":   len(configs),
		"enabledMonitors": enabled,
		"uptime_ms":       time.Since(h.StartedAt).Milliseconds(),
		"scheduler":       h.Scheduler.Status(),
	})
}

// SystemHealth handles GET /api/system/health.
func (h *Handlers) SystemHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"kvstore": "healthy"}
	if _, err := h.Store.Range(r.Context(), kvstore.MonitorsPrefix(), kvstore.RangeOptions{Limit: 1}); err != nil {
		services["kvstore"] = "unhealthy"
	}
	errors.WriteData(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"services":  services,
		"scheduler": h.Scheduler.Status(),
	})
}

// SystemCache handles GET /api/system/cache.
func (h *Handlers) SystemCache(w http.ResponseWriter, r *http.Request) {
	errors.WriteData(w, http.StatusOK, h.Cache.Stats())
}

// SystemCacheClear handles POST /api/system/cache/clear.
func (h *Handlers) SystemCacheClear(w http.ResponseWriter, r *http.Request) {
	h.Cache.ClearAll()
	errors.WriteData(w, http.StatusOK, map[string]any{"cleared": true})
}

// SystemScheduler handles GET /api/system/scheduler.
func (h *Handlers) SystemScheduler(w http.ResponseWriter, r *http.Request) {
	errors.WriteData(w, http.StatusOK, h.Scheduler.Status())
}

// SystemLogs handles GET /api/system/logs, querying the system log
// sink with level/monitor_id/text filters and offset/limit paging.
func (h *Handlers) SystemLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := systemlog.Filter{
		Level:        models.LogLevel(q.Get("level")),
		MonitorID:    q.Get("monitor_id"),
		TextContains: q.Get("q"),
		Offset:       atoiDefault(q.Get("offset"), 0),
		Limit:        atoiDefault(q.Get("limit"), 100),
	}

	key := fmt.Sprintf("%s:%s:%s:%d:%d", filter.Level, filter.MonitorID, filter.TextContains, filter.Offset, filter.Limit)
	if cached, ok := h.Cache.Get(cache.BucketLogs, key); ok {
		var result systemlog.ListResult
		if err := json.Unmarshal(cached, &result); err == nil {
			errors.WriteData(w, http.StatusOK, result)
			return
		}
	}

	result, err := h.Logs.List(r.Context(), filter)
	if err != nil {
		errors.WriteError(w, errors.Database("读取系统日志失败"))
		return
	}
	if payload, err := json.Marshal(result); err == nil {
		h.Cache.Set(cache.BucketLogs, key, payload)
	}
	errors.WriteData(w, http.StatusOK, result)
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return def
}

// ---- shared helpers ----

func parsePeriod(raw string) stats.Period {
	if stats.Period(raw) == stats.Period7d {
		return stats.Period7d
	}
	return stats.Period24h
}

// loadAllConfigs returns every monitor config, serving from the
// ALL_MONITOR_CONFIGS cache entry when present and populating it on a
// miss. Any write path that changes a config clears BucketConfigs.
// Skips any value that fails to unmarshal (defensive against a
// partially written record; never fails the whole listing for one bad
// row).
func (h *Handlers) loadAllConfigs(ctx context.Context) ([]models.MonitorConfig, error) {
	if cached, ok := h.Cache.Get(cache.BucketConfigs, cache.AllMonitorConfigsKey); ok {
		var configs []models.MonitorConfig
		if err := json.Unmarshal(cached, &configs); err == nil {
			return configs, nil
		}
	}

	entries, err := h.Store.Range(ctx, kvstore.MonitorsPrefix(), kvstore.RangeOptions{})
	if err != nil {
		return nil, err
	}
	configs := make([]models.MonitorConfig, 0, len(entries))
	for _, e := range entries {
		var cfg models.MonitorConfig
		if err := json.Unmarshal(e.Value, &cfg); err != nil {
			continue
		}
		configs = append(configs, cfg)
	}

	if payload, err := json.Marshal(configs); err == nil {
		h.Cache.Set(cache.BucketConfigs, cache.AllMonitorConfigsKey, payload)
	}
	return configs, nil
}

func (h *Handlers) loadConfig(ctx context.Context, id string) (models.MonitorConfig, error) {
	raw, err := h.Store.Get(ctx, kvstore.MonitorsKey(id))
	if err != nil {
		return models.MonitorConfig{}, err
	}
	var cfg models.MonitorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.MonitorConfig{}, err
	}
	return cfg, nil
}

func (h *Handlers) putConfig(ctx context.Context, cfg models.MonitorConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return h.Store.Set(ctx, kvstore.MonitorsKey(cfg.ID), payload)
}
