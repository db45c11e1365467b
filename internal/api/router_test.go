package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/obikwelu/resulthawk/internal/api"
	"github.com/obikwelu/resulthawk/internal/api/handler"
	"github.com/obikwelu/resulthawk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

type stubEngine struct{ status models.EngineStatus }

func (s stubEngine) Status(ctx context.Context) models.EngineStatus { return s.status }

func testRouter(dbErr, cacheErr error, status models.EngineStatus) http.Handler {
	return api.NewRouter(api.Dependencies{
		HealthHandler: handler.Health(stubPinger{err: dbErr}, stubPinger{err: cacheErr}),
		StatusHandler: handler.Status(stubEngine{status: status}),
	})
}

func TestHealthzOK(t *testing.T) {
	router := testRouter(nil, nil, models.EngineStatus{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Data struct {
			Database string `json:"database"`
			Cache    string `json:"cache"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Database)
	assert.Equal(t, "ok", body.Data.Cache)
}

func TestHealthzDegradedDependency(t *testing.T) {
	router := testRouter(errors.New("connection refused"), nil, models.EngineStatus{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DEGRADED", body.Error.Code)
}

func TestStatusReportsEngineSnapshot(t *testing.T) {
	status := models.EngineStatus{
		Running:       true,
		QueueDepth:    7,
		ActiveJobs:    2,
		MaxConcurrent: 3,
		Pool:          models.PoolStats{Total: 3, Available: 1, InUse: 2, Max: 5},
	}
	router := testRouter(nil, nil, status)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data models.EngineStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, status, body.Data)
}

func TestUnknownRouteIs404(t *testing.T) {
	router := testRouter(nil, nil, models.EngineStatus{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddlewareCatchesPanic(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		HealthHandler: func(w http.ResponseWriter, r *http.Request) { panic("boom") },
		StatusHandler: handler.Status(stubEngine{}),
	})

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
