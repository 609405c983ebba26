// Package probe implements the HTTP probe executor (C4); concurrency is
// bounded by the scheduler's batches, not here. Given a MonitorConfig
// it performs exactly one HTTP attempt
// sequence and returns a single terminal MonitorHistory-shaped Result.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/models"
)

// maxBodyRead caps how much of the response body check_response_success
// reads — enough to decide "body length > 0" without buffering an
// unbounded payload.
const maxBodyRead = 64 * 1024

const unexpectedResponseReason = "响应不符合预期"

// RetryPolicy is the fixed linear backoff schedule the executor uses
// for network errors and timeouts: two retries at 1s then 2s, never
// retrying a context cancellation.
type RetryPolicy struct {
	MaxRetries int
	Delays     []time.Duration
}

// DefaultRetryPolicy matches spec.md's fixed 1s/2s schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Delays: []time.Duration{time.Second, 2 * time.Second}}
}

// Result is the terminal outcome of one probe.
type Result struct {
	Status         models.HistoryStatus
	HTTPStatus     *int
	ResponseTimeMs int64
	Error          string
}

var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (compatible; SitePulse/1.0; +monitor)",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Executor performs HTTP probes against configured monitors.
type Executor struct {
	client  *http.Client
	timeout time.Duration
	retry   RetryPolicy
	metrics *metrics.Registry
}

// New builds an Executor with the given per-attempt timeout. reg may
// be nil, in which case probe outcomes and duration go unrecorded.
func New(timeout time.Duration, reg *metrics.Registry) *Executor {
	return &Executor{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		timeout: timeout,
		retry:   DefaultRetryPolicy(),
		metrics: reg,
	}
}

// Execute runs the full attempt-and-retry sequence for config and
// returns exactly one terminal Result.
func (e *Executor) Execute(ctx context.Context, config models.MonitorConfig) Result {
	start := time.Now()
	result := e.execute(ctx, config)
	if e.metrics != nil {
		status := string(result.Status)
		e.metrics.ProbeOutcomesTotal.WithLabelValues(status).Inc()
		e.metrics.ProbeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	return result
}

func (e *Executor) execute(ctx context.Context, config models.MonitorConfig) Result {
	target, err := url.Parse(config.URL)
	if err != nil || !target.IsAbs() {
		return Result{Status: models.HistoryError, Error: fmt.Sprintf("invalid url: %v", err)}
	}
	method := string(config.Method)
	if method == "" {
		method = string(models.MethodGET)
	}

	var lastErr error
attempts:
	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break attempts
			}
			select {
			case <-time.After(e.retry.Delays[attempt-1]):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			}
		}

		result, retryable, err := e.attempt(ctx, method, target, config)
		if err == nil {
			return result
		}
		lastErr = err
		if !retryable {
			break attempts
		}
	}

	return Result{Status: models.HistoryError, Error: lastErr.Error()}
}

// attempt performs a single HTTP round trip. It returns a terminal
// Result when the response was fully classified, or a non-nil error
// together with whether that error is retryable.
func (e *Executor) attempt(ctx context.Context, method string, target *url.URL, config models.MonitorConfig) (Result, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, target.String(), nil)
	if err != nil {
		return Result{}, false, err
	}
	applyHeaders(req, target, config)

	start := time.Now()
	resp, err := e.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if isCancellation(ctx, err) {
			return Result{}, false, err
		}
		return Result{}, true, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	result := classify(target.Host, resp, body, elapsed)
	return result, false, nil
}

func applyHeaders(req *http.Request, target *url.URL, config models.MonitorConfig) {
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range config.Headers {
		req.Header.Set(k, v)
	}
	if config.Cookie != "" {
		req.Header.Set("Cookie", config.Cookie)
	}
	origin := target.Scheme + "://" + target.Host
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
}

func isCancellation(parent context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && parent.Err() != nil
}

func classify(originalHost string, resp *http.Response, body []byte, elapsed time.Duration) Result {
	status := resp.StatusCode
	ms := elapsed.Milliseconds()

	if status >= 400 {
		return Result{
			Status:         models.HistoryError,
			HTTPStatus:     &status,
			ResponseTimeMs: ms,
			Error:          fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
		}
	}

	if checkResponseSuccess(originalHost, resp, body) {
		return Result{Status: models.HistorySuccess, HTTPStatus: &status, ResponseTimeMs: ms}
	}
	return Result{
		Status:         models.HistoryError,
		HTTPStatus:     &status,
		ResponseTimeMs: ms,
		Error:          unexpectedResponseReason,
	}
}

// checkResponseSuccess applies the shared success predicate: a
// non-empty body, plus a target-specific affinity rule — when the
// configured target host contains cloudstudio.net, the final URL
// (after following redirects) must still resolve to cloudstudio.net
// or cloudstudio.club.
func checkResponseSuccess(originalHost string, resp *http.Response, body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if strings.Contains(originalHost, "cloudstudio.net") {
		finalHost := originalHost
		if resp.Request != nil && resp.Request.URL != nil {
			finalHost = resp.Request.URL.Host
		}
		return strings.Contains(finalHost, "cloudstudio.net") || strings.Contains(finalHost, "cloudstudio.club")
	}
	return true
}
