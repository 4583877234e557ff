package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflightIsAnsweredWithCORSHeaders(t *testing.T) {
	svc := &stubService{}
	h, _ := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodOptions, "/v1/scheduling", nil)
	req.Header.Set("Origin", "https://agenda.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "content-type")
	assert.Zero(t, svc.ensureCalls)
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetRequestID(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Body.String(), 36)
	assert.Equal(t, rec.Body.String(), rec.Header().Get("X-Request-ID"))
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	h := RequestIDMiddleware(RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scheduling", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "internal_error", resp.Code)
	assert.Contains(t, logs.String(), `"panic":"boom"`)
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	h := LoggingMiddleware(zerolog.New(&logs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/scheduling", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, "/v1/scheduling", entry["path"])
	assert.Equal(t, "POST", entry["method"])
}

func TestReadiness(t *testing.T) {
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		postgres Pinger
		redis    RedisPinger
		code     int
		status   string
		redisDep string
	}{
		{"all up", up, RedisPinger(up), http.StatusOK, "ok", "ok"},
		{"redis disabled", up, nil, http.StatusOK, "ok", "disabled"},
		{"redis down", up, RedisPinger(down), http.StatusOK, "degraded", "down"},
		{"postgres down", down, RedisPinger(up), http.StatusServiceUnavailable, "error", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.code, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.redisDep, resp.Dependencies["redis"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(&stubService{tenants: map[uuid.UUID]bool{tenantA: true}})
	post(t, h, SchedulingRequest{Action: ActionCancel, TenantID: tenantA.String()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_scheduling_requests_total")
}
