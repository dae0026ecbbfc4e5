package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage/internal/database"
	"triage/internal/models"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// EventType constants for tracking different events
const (
	EventLLMCall          = "llm_call"
	EventTaskFanout       = "task_fanout"
	EventVectorSearch     = "vector_search"
	EventEmailIngest      = "email_ingest"
	EventNotificationSent = "notification_sent"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Service handles analytics tracking and retrieval
type Service struct {
	writeClient *database.WriteClient
	logger      zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
}

// NewService creates a new analytics service
func NewService(writeClient *database.WriteClient, logger zerolog.Logger) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{
		writeClient: writeClient,
		logger:      logger.With().Str("component", "analytics").Logger(),
		now:         time.Now,
	}

	// Create analytics tables if they don't exist
	if err := service.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			count INT DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
		// Daily aggregates table for faster queries
		`CREATE TABLE IF NOT EXISTS analytics_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_daily_date ON analytics_daily(date)`,
	}

	for _, query := range queries {
		if _, err := s.writeClient.ExecuteWriteQuery(query); err != nil {
			return err
		}
	}

	return nil
}

// TrackEvent records an analytics event
func (s *Service) TrackEvent(eventType string, count int, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	query := `INSERT INTO analytics_events (event_type, count, metadata) VALUES ($1, $2, $3)`
	_, err := s.writeClient.ExecuteWriteQuery(query, eventType, count, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	// Update daily aggregate
	today := s.now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO analytics_daily (date, event_type, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = analytics_daily.total_count + EXCLUDED.total_count,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.writeClient.ExecuteWriteQuery(aggregateQuery, today, eventType, count)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to update daily aggregate")
	}

	return nil
}

// TrackEmailIngest records emails accepted by an ingest source
func (s *Service) TrackEmailIngest(accepted, duplicates int, source string) error {
	metadata := map[string]interface{}{
		"source":     source,
		"duplicates": duplicates,
	}
	return s.TrackEvent(EventEmailIngest, accepted, metadata)
}

// TrackNotification records an urgent task e-mail
func (s *Service) TrackNotification(taskID int64, recipient string) error {
	metadata := map[string]interface{}{
		"task_id":        taskID,
		"recipient_hash": hashEmail(recipient),
	}
	return s.TrackEvent(EventNotificationSent, 1, metadata)
}

// periodRange resolves a period name; unknown names mean today
func periodRange(period string, now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return period, midnight.AddDate(0, 0, -1), midnight
	case PeriodLast7Days:
		return period, now.AddDate(0, 0, -7), now
	case PeriodLast30Days:
		return period, now.AddDate(0, 0, -30), now
	}
	return PeriodToday, midnight, now
}

// GetSummary retrieves analytics summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	period, startDate, endDate := periodRange(period, s.now())
	summary := &models.AnalyticsSummary{
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
	}

	// Get event counts from daily aggregates
	query := `
		SELECT event_type, COALESCE(SUM(total_count), 0) as total
		FROM analytics_daily
		WHERE date >= $1 AND date <= $2
		GROUP BY event_type
	`

	db := s.writeClient.GetDB()
	rows, err := db.QueryContext(ctx, query, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventType string
		var total int
		if err := rows.Scan(&eventType, &total); err != nil {
			continue
		}

		switch eventType {
		case EventEmailIngest:
			summary.EmailsIngested = total
		case EventLLMCall:
			summary.LLMCalls = total
		case EventTaskFanout:
			summary.TasksCreated = total
		case EventVectorSearch:
			summary.VectorSearches = total
		case EventNotificationSent:
			summary.NotificationsSent = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analytics summary: %w", err)
	}

	// Token usage and cost come from the raw events
	usageQuery := `
		SELECT COALESCE(SUM((metadata->>'tokens')::int), 0), COALESCE(SUM((metadata->>'cost')::numeric), 0)
		FROM analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3
	`
	if err := db.QueryRowContext(ctx, usageQuery, EventLLMCall, startDate, endDate).Scan(&summary.LLMTokensUsed, &summary.LLMCost); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to sum llm usage")
	}

	runsQuery := `SELECT COUNT(*) FROM analytics_events WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3`
	if err := db.QueryRowContext(ctx, runsQuery, EventTaskFanout, startDate, endDate).Scan(&summary.FanoutRuns); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count fan-out runs")
	}

	return summary, nil
}

// GetDailyReport returns yesterday's complete summary
func (s *Service) GetDailyReport(ctx context.Context) (*models.AnalyticsSummary, error) {
	return s.GetSummary(ctx, PeriodYesterday)
}

// hashEmail creates a simple hash of an email for privacy
func hashEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	return email[:2] + "***" + email[len(email)-3:]
}
