package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.now = func() time.Time { return time.Unix(1741600000, 0) }

	tracker := metrics.Track("installments:mark_overdue")
	assert.Contains(t, scrape(t, registry), `crediario_jobs_in_flight{job="installments:mark_overdue"} 1`)
	tracker.AddProcessed(3)
	require.NoError(t, tracker.End(nil))

	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("installments:mark_overdue").End(boom), boom)

	body := scrape(t, registry)
	for _, want := range []string{
		`crediario_jobs_total{job="installments:mark_overdue",status="success"} 1`,
		`crediario_jobs_total{job="installments:mark_overdue",status="failure"} 1`,
		`crediario_jobs_failures_total{job="installments:mark_overdue"} 1`,
		`crediario_job_processed_total{job="installments:mark_overdue"} 3`,
		`crediario_job_duration_seconds_count{job="installments:mark_overdue"} 2`,
		`crediario_job_last_success_timestamp_seconds{job="installments:mark_overdue"} 1.7416e+09`,
		`crediario_jobs_in_flight{job="installments:mark_overdue"} 0`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestNilTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	tracker := metrics.Track("x")
	tracker.AddProcessed(5)
	assert.ErrorIs(t, tracker.End(boom), boom)
}
