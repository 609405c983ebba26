// Package models defines the entities persisted in the key-value store:
// monitor configs, probe history, sessions, login attempts, and system
// logs. Types are JSON-tagged for the KV adapter's encoding boundary.
package models

import "time"

// MonitorStatus is the lifecycle status of a MonitorConfig.
type MonitorStatus string

const (
	StatusPending MonitorStatus = "pending"
	StatusSuccess MonitorStatus = "success"
	StatusError   MonitorStatus = "error"
)

// Method is the allowed HTTP probe method.
type Method string

const (
	MethodGET  Method = "GET"
	MethodPOST Method = "POST"
	MethodHEAD Method = "HEAD"
)

// MonitorConfig is the unit of monitoring: one HTTP endpoint probed on
// a fixed interval.
type MonitorConfig struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          Method            `json:"method"`
	Cookie          string            `json:"cookie,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	IntervalMinutes int               `json:"interval_minutes"`
	Enabled         bool              `json:"enabled"`
	LastCheckAt     *time.Time        `json:"last_check_at,omitempty"`
	Status          MonitorStatus     `json:"status"`
	LastError       string            `json:"last_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HistoryStatus is the terminal outcome of a single probe attempt.
type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "success"
	HistoryError   HistoryStatus = "error"
)

// MonitorHistory is one probe outcome, appended by the executor.
type MonitorHistory struct {
	ID             string        `json:"id"`
	MonitorID      string        `json:"monitor_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         HistoryStatus `json:"status"`
	ResponseTimeMs *int64        `json:"response_time_ms,omitempty"`
	HTTPStatus     *int          `json:"http_status,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Session is an authenticated admin session.
type Session struct {
	ID             string    `json:"id"`
	Authenticated  bool      `json:"authenticated"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessAt   time.Time `json:"last_access_at"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
}

// LoginAttempt records one login attempt for rate-limiting purposes.
type LoginAttempt struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// LogLevel is the severity of a SystemLog entry.
type LogLevel string

const (
	LogDebug LogLevel = "DEBUG"
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// SystemLog is an operator-facing event, append-only.
type SystemLog struct {
	ID          string                 `json:"id"`
	Level       LogLevel               `json:"level"`
	Message     string                 `json:"message"`
	MonitorID   string                 `json:"monitor_id,omitempty"`
	MonitorName string                 `json:"monitor_name,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
