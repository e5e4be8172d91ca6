package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/monitoring"
	"tippslottet/internal/types"
)

type fakeDashboard struct {
	lastWindow time.Duration
	summary    monitoring.Summary
	health     monitoring.Health
}

func (f *fakeDashboard) Summary(_ context.Context, window time.Duration) monitoring.Summary {
	f.lastWindow = window
	return f.summary
}

func (f *fakeDashboard) Health(_ context.Context, window time.Duration) monitoring.Health {
	f.lastWindow = window
	return f.health
}

func emailOpsRouter(d *fakeDashboard) http.Handler {
	h := NewEmailOpsHandler(d, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestEmailDashboardDefaultWindow(t *testing.T) {
	d := &fakeDashboard{summary: monitoring.Summary{OverallStatus: types.HealthHealthy}}
	router := emailOpsRouter(d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email-dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitoring.DefaultWindow, d.lastWindow)
	assert.Contains(t, rec.Body.String(), "overallStatus")
}

func TestEmailDashboardCustomWindow(t *testing.T) {
	d := &fakeDashboard{}
	router := emailOpsRouter(d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email-dashboard?hours=72", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 72*time.Hour, d.lastWindow)
}

func TestEmailDashboardRejectsBadWindow(t *testing.T) {
	router := emailOpsRouter(&fakeDashboard{})

	for _, q := range []string{"hours=0", "hours=-2", "hours=snart"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email-dashboard?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestEmailDashboardClampsHugeWindow(t *testing.T) {
	d := &fakeDashboard{}
	router := emailOpsRouter(d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email-dashboard?hours=100000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxDashboardWindow, d.lastWindow)
}

func TestEmailHealthStatusMapping(t *testing.T) {
	tests := []struct {
		status     types.HealthStatus
		wantStatus int
	}{
		{status: types.HealthHealthy, wantStatus: http.StatusOK},
		{status: types.HealthDegraded, wantStatus: http.StatusPartialContent},
		{status: types.HealthUnknown, wantStatus: http.StatusPartialContent},
		{status: types.HealthUnhealthy, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			d := &fakeDashboard{health: monitoring.Health{Status: tt.status}}
			router := emailOpsRouter(d)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email-health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), string(tt.status))
		})
	}
}
