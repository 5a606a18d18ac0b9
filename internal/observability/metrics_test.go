package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	require.Contains(t, body, `tempora_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `tempora_http_request_duration_seconds_bucket{route="/test"`)
}

func TestJobTrackerRecordsRuns(t *testing.T) {
	metrics := NewMetrics()
	jobs := NewJobMetrics(metrics.Registerer())

	require.NoError(t, jobs.Track("report_reconcile").End(nil))
	failure := errors.New("boom")
	require.ErrorIs(t, jobs.Track("report_reconcile").End(failure), failure)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	require.Contains(t, body, `tempora_jobs_total{job="report_reconcile",status="success"} 1`)
	require.Contains(t, body, `tempora_jobs_total{job="report_reconcile",status="failure"} 1`)
	require.Contains(t, body, `tempora_jobs_failures_total{job="report_reconcile"} 1`)
}
