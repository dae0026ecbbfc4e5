package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"triage/internal/analytics"
	"triage/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummaries struct {
	period string
	err    error
}

func (s *stubSummaries) GetSummary(_ context.Context, period string) (*models.AnalyticsSummary, error) {
	s.period = period
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnalyticsSummary{Period: period, LLMCalls: 14, TasksCreated: 9}, nil
}

func (s *stubSummaries) GetDailyReport(ctx context.Context) (*models.AnalyticsSummary, error) {
	return s.GetSummary(ctx, analytics.PeriodYesterday)
}

func TestAnalyticsHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantPeriod string
		wantStatus int
	}{
		{"default period", "/api/analytics", nil, analytics.PeriodYesterday, http.StatusOK},
		{"explicit period", "/api/analytics?period=last_7_days", nil, analytics.PeriodLast7Days, http.StatusOK},
		{"query failure", "/api/analytics?period=today", errors.New("db down"), analytics.PeriodToday, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSummaries{err: tt.err}
			rec := doRequest(t, AnalyticsHandler(svc, zerolog.Nop()), http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantPeriod, svc.period)

			var resp models.AnalyticsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.err == nil {
				require.NotNil(t, resp.Summary)
				assert.Equal(t, 14, resp.Summary.LLMCalls)
			} else {
				assert.Contains(t, resp.Error, "db down")
			}
		})
	}
}

func TestDailyReportHandler(t *testing.T) {
	svc := &stubSummaries{}
	rec := doRequest(t, DailyReportHandler(svc, zerolog.Nop()), http.MethodGet, "/api/analytics/daily-report", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.PeriodYesterday, svc.period)

	failing := &stubSummaries{err: errors.New("boom")}
	rec = doRequest(t, DailyReportHandler(failing, zerolog.Nop()), http.MethodGet, "/api/analytics/daily-report", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
