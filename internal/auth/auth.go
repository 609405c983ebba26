// Package auth implements session-cookie authentication (C6): login
// with IP-based lockout, session lookup/refresh, and logout, all
// backed by the KV store.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitepulse/sitepulse/internal/kvstore"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/models"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

const attemptRetention = 24 * time.Hour

// ErrTooManyAttempts is returned by Login when the IP is locked out.
var ErrTooManyAttempts = errors.New("登录尝试次数过多")

// ErrInvalidPassword is returned by Login on a wrong password.
var ErrInvalidPassword = errors.New("密码错误")

// ErrSessionInvalid is returned by Check when no valid session exists.
var ErrSessionInvalid = errors.New("auth: session missing or expired")

// Config tunes lockout and session lifetime.
type Config struct {
	AdminPassword      string
	SessionExpireHours int
	LockoutMinutes     int
	MaxLoginAttempts   int
}

// Service implements login, session check, and logout.
type Service struct {
	store   kvstore.Store
	cfg     Config
	metrics *metrics.Registry
}

// New builds a Service over store. reg may be nil, in which case the
// login-attempt metrics go unrecorded (attempts are still stored).
func New(store kvstore.Store, cfg Config, reg *metrics.Registry) *Service {
	return &Service{store: store, cfg: cfg, metrics: reg}
}

// ClientIP extracts the caller's address from the first X-Forwarded-For
// entry, X-Real-IP, or CF-Connecting-IP, in that order, falling back
// to "unknown" when none are present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return "unknown"
}

// Login validates the password for ip, applying the trailing-window
// lockout, and on success creates and persists a Session, returning
// the token to set as a cookie.
func (s *Service) Login(ctx context.Context, ip, password string) (string, *models.Session, error) {
	locked, err := s.isLockedOut(ctx, ip)
	if err != nil {
		return "", nil, err
	}
	if locked {
		if recErr := s.recordAttempt(ctx, ip, false); recErr != nil {
			return "", nil, recErr
		}
		s.observeLogin("lockout")
		return "", nil, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) != 1 {
		if err := s.recordAttempt(ctx, ip, false); err != nil {
			return "", nil, err
		}
		s.observeLogin("invalid_password")
		return "", nil, ErrInvalidPassword
	}

	if err := s.recordAttempt(ctx, ip, true); err != nil {
		return "", nil, err
	}
	s.observeLogin("success")

	now := time.Now().UTC()
	session := models.Session{
		ID:            uuid.New().String(),
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.cfg.SessionExpireHours) * time.Hour),
		LastAccessAt:  now,
		IPAddress:     ip,
	}
	if err := s.putSession(ctx, session); err != nil {
		return "", nil, err
	}
	return session.ID, &session, nil
}

// isLockedOut counts failed attempts from ip within the lockout
// window; the window only ever looks at the trailing LockoutMinutes
// of failures, not the whole 24h retention horizon.
func (s *Service) isLockedOut(ctx context.Context, ip string) (bool, error) {
	entries, err := s.store.Range(ctx, kvstore.LoginAttemptsPrefix(ip), kvstore.RangeOptions{})
	if err != nil {
		return false, err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.LockoutMinutes) * time.Minute)
	failures := 0
	for _, e := range entries {
		var attempt models.LoginAttempt
		if err := json.Unmarshal(e.Value, &attempt); err != nil {
			continue
		}
		if attempt.Success || attempt.Timestamp.Before(cutoff) {
			continue
		}
		failures++
	}
	return failures >= s.cfg.MaxLoginAttempts, nil
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) recordAttempt(ctx context.Context, ip string, success bool) error {
	attempt := models.LoginAttempt{
		ID:        uuid.New().String(),
		IP:        ip,
		Timestamp: time.Now().UTC(),
		Success:   success,
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, kvstore.LoginAttemptsKey(ip, attempt.ID), payload)
}

func (s *Service) putSession(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, kvstore.SessionsKey(session.ID), payload)
}

// Check looks up the session for token; an absent or expired session
// is deleted (if present) and reported as ErrSessionInvalid. A valid
// session has its last_access_at refreshed.
func (s *Service) Check(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	raw, err := s.store.Get(ctx, kvstore.SessionsKey(token))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !now.Before(session.ExpiresAt) {
		_ = s.store.Delete(ctx, kvstore.SessionsKey(token))
		return nil, ErrSessionInvalid
	}

	session.LastAccessAt = now
	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout deletes the session for token, if any.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.Delete(ctx, kvstore.SessionsKey(token))
}

// SweepExpiredSessions deletes every session whose expires_at has
// passed. Used by the maintenance job.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	entries, err := s.store.Range(ctx, kvstore.SessionsPrefix(), kvstore.RangeOptions{})
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	deleted := 0
	for _, e := range entries {
		var session models.Session
		if err := json.Unmarshal(e.Value, &session); err != nil {
			continue
		}
		if session.ExpiresAt.After(now) {
			continue
		}
		if err := s.store.Delete(ctx, kvstore.SessionsKey(session.ID)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// SweepOldLoginAttempts deletes login attempt records older than the
// 24h retention horizon, independent of the shorter lockout window.
func (s *Service) SweepOldLoginAttempts(ctx context.Context) (int, error) {
	entries, err := s.store.Range(ctx, kvstore.Key{"login_attempts"}, kvstore.RangeOptions{})
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-attemptRetention)
	deleted := 0
	for _, e := range entries {
		var attempt models.LoginAttempt
		if err := json.Unmarshal(e.Value, &attempt); err != nil {
			continue
		}
		if attempt.Timestamp.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, kvstore.LoginAttemptsKey(attempt.IP, attempt.ID)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
