package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/sitepulse/internal/models"
)

func TestExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hi"))
	}))
	defer server.Close()

	exec := New(time.Second, nil)
	result := exec.Execute(context.Background(), models.MonitorConfig{URL: server.URL, Method: models.MethodGET})

	assert.Equal(t, models.HistorySuccess, result.Status)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, http.StatusOK, *result.HTTPStatus)
}

func TestExecuteEmptyBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := New(time.Second, nil)
	result := exec.Execute(context.Background(), models.MonitorConfig{URL: server.URL, Method: models.MethodGET})

	assert.Equal(t, models.HistoryError, result.Status)
	assert.Equal(t, unexpectedResponseReason, result.Error)
}

func TestExecuteNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	exec := New(time.Second, nil)
	result := exec.Execute(context.Background(), models.MonitorConfig{URL: server.URL, Method: models.MethodGET})

	assert.Equal(t, models.HistoryError, result.Status)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, http.StatusForbidden, *result.HTTPStatus)
	assert.Contains(t, result.Error, "403")
}

func TestExecuteInvalidURL(t *testing.T) {
	exec := New(time.Second, nil)
	result := exec.Execute(context.Background(), models.MonitorConfig{URL: "not-a-url", Method: models.MethodGET})

	assert.Equal(t, models.HistoryError, result.Status)
	assert.Nil(t, result.HTTPStatus)
}

func TestExecuteTimeoutRetriesThenFails(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("too slow"))
	}))
	defer server.Close()

	exec := New(50 * time.Millisecond, nil)
	exec.retry = RetryPolicy{MaxRetries: 2, Delays: []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}}

	result := exec.Execute(context.Background(), models.MonitorConfig{URL: server.URL, Method: models.MethodGET})

	assert.Equal(t, models.HistoryError, result.Status)
	assert.Equal(t, 3, calls)
}

func TestCustomHeadersOverrideDefaults(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("hi"))
	}))
	defer server.Close()

	exec := New(time.Second, nil)
	exec.Execute(context.Background(), models.MonitorConfig{
		URL:     server.URL,
		Method:  models.MethodGET,
		Headers: map[string]string{"User-Agent": "custom-agent"},
	})

	assert.Equal(t, "custom-agent", gotUA)
}
