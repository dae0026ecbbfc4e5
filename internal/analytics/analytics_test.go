package analytics

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"triage/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	// NewService bootstraps five DDL statements
	for i := 0; i < 5; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	svc, err := NewService(database.NewWriteClientFromDB(sqlx.NewDb(mockDB, "sqlmock")), zerolog.Nop())
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock
}

func TestNewService_RequiresClient(t *testing.T) {
	_, err := NewService(nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestTrackEvent(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analytics_events (event_type, count, metadata) VALUES ($1, $2, $3)")).
		WithArgs(EventLLMCall, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO analytics_daily").
		WithArgs("2026-03-10", EventLLMCall, 1).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.TrackEvent(EventLLMCall, 1, map[string]interface{}{"tokens": 1500, "cost": 0.004})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackEvent_Errors(t *testing.T) {
	t.Run("event insert fails", func(t *testing.T) {
		svc, mock := newTestService(t)
		mock.ExpectExec("INSERT INTO analytics_events").WillReturnError(errors.New("disk full"))
		assert.Error(t, svc.TrackEvent(EventTaskFanout, 7, nil))
	})

	t.Run("aggregate failure is tolerated", func(t *testing.T) {
		svc, mock := newTestService(t)
		mock.ExpectExec("INSERT INTO analytics_events").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO analytics_daily").WillReturnError(errors.New("deadlock"))
		assert.NoError(t, svc.TrackEvent(EventTaskFanout, 7, nil))
	})
}

func TestTrackNotification_HashesRecipient(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO analytics_events").
		WithArgs(EventNotificationSent, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO analytics_daily").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, svc.TrackNotification(12, "boris@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "bo***com", hashEmail("boris@example.com"))
	assert.Equal(t, "***", hashEmail("a@"))
}

func TestPeriodRange(t *testing.T) {
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		period     string
		wantPeriod string
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{PeriodToday, PeriodToday, midnight, fixedNow},
		{PeriodYesterday, PeriodYesterday, midnight.AddDate(0, 0, -1), midnight},
		{PeriodLast7Days, PeriodLast7Days, fixedNow.AddDate(0, 0, -7), fixedNow},
		{PeriodLast30Days, PeriodLast30Days, fixedNow.AddDate(0, 0, -30), fixedNow},
		{"fortnight", PeriodToday, midnight, fixedNow},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			p, start, end := periodRange(tt.period, fixedNow)
			assert.Equal(t, tt.wantPeriod, p)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestGetSummary(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("FROM analytics_daily").
		WithArgs("2026-03-09", "2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "total"}).
			AddRow(EventEmailIngest, 40).
			AddRow(EventLLMCall, 55).
			AddRow(EventTaskFanout, 120).
			AddRow(EventVectorSearch, 30).
			AddRow(EventNotificationSent, 4).
			AddRow("legacy_event", 99))
	mock.ExpectQuery("SUM\\(\\(metadata->>'tokens'\\)::int\\)").
		WithArgs(EventLLMCall, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"tokens", "cost"}).AddRow(82000, 0.61))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM analytics_events").
		WithArgs(EventTaskFanout, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(38))

	s, err := svc.GetSummary(context.Background(), PeriodYesterday)
	require.NoError(t, err)
	assert.Equal(t, PeriodYesterday, s.Period)
	assert.Equal(t, 40, s.EmailsIngested)
	assert.Equal(t, 55, s.LLMCalls)
	assert.Equal(t, 120, s.TasksCreated)
	assert.Equal(t, 30, s.VectorSearches)
	assert.Equal(t, 4, s.NotificationsSent)
	assert.Equal(t, 82000, s.LLMTokensUsed)
	assert.InDelta(t, 0.61, s.LLMCost, 1e-9)
	assert.Equal(t, 38, s.FanoutRuns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSummary_QueryError(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("FROM analytics_daily").WillReturnError(errors.New("connection refused"))

	_, err := svc.GetSummary(context.Background(), PeriodToday)
	assert.Error(t, err)
}
