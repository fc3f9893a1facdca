package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-workers/internal/common/config"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/storage/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewTestLogger(t)

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}, 5, time.Millisecond, log, "test")
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), func() error {
			calls++
			return errors.New("connection refused")
		}, 3, time.Millisecond, log, "test")
		assert.EqualError(t, err, "test failed after 3 attempts: connection refused")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retryWithBackoff(ctx, func() error {
			return errors.New("connection refused")
		}, 3, time.Hour, log, "test")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }

	t.Run("all healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]func(context.Context) error{"postgres": ok, "redis": ok}, time.Second).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var report healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "ok", report.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, report.Checks)
	})

	t.Run("one failing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]func(context.Context) error{
			"postgres": ok,
			"zeebe":    func(context.Context) error { return errors.New("gateway unavailable") },
		}, time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var report healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "degraded", report.Status)
		assert.Equal(t, "gateway unavailable", report.Checks["zeebe"])
	})
}

func TestNewSessionDeps_WithoutBucket(t *testing.T) {
	cfg := &config.Config{}
	cfg.Form.AutosaveInterval = 3 * time.Second
	cfg.Form.MaxResumeBytes = 2048

	docs := docstore.NewMemoryStore()
	deps, err := newSessionDeps(context.Background(), cfg, docs, nil, nil, nil)
	require.NoError(t, err)

	assert.Same(t, docs, deps.Docs)
	assert.Equal(t, 3*time.Second, deps.AutosaveInterval)
	assert.Equal(t, int64(2048), deps.MaxResumeBytes)
	assert.Nil(t, deps.Uploader, "no bucket, no resume storage")
}
