package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Timestamp)
}

func TestWriteErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   int
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest, 1001},
		{"auth failed", AuthFailed("bad password"), http.StatusUnauthorized, 1002},
		{"authz failed", AuthzFailed("no session"), http.StatusUnauthorized, 1003},
		{"not found", NotFound("no such monitor"), http.StatusNotFound, 1004},
		{"database", Database("write failed"), http.StatusInternalServerError, 2001},
		{"network", Network("dial failed"), http.StatusInternalServerError, 2002},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests, 3001},
		{"internal", Internal("boom"), http.StatusInternalServerError, 5001},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)

			var env Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tc.wantCode, env.Code)
			assert.Equal(t, tc.err.Message, env.Error)
		})
	}
}

func TestWriteErrorWrapsUnknownErrorsAsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, assertError{"boom"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, int(CodeInternal), env.Code)
	assert.NotContains(t, env.Error, "boom")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
