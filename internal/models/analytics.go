package models

import "time"

// AnalyticsEvent represents a tracked event
type AnalyticsEvent struct {
	ID        int       `db:"id" json:"id"`
	EventType string    `db:"event_type" json:"event_type"` // llm_call, task_fanout, vector_search, email_ingest, notification_sent
	Count     int       `db:"count" json:"count"`
	Metadata  *string   `db:"metadata" json:"metadata,omitempty"` // JSON metadata (tokens, cost, model, etc.)
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnalyticsSummary represents aggregated pipeline activity for a time period
type AnalyticsSummary struct {
	Period            string    `json:"period"`             // "today", "yesterday", "last_7_days", "last_30_days"
	EmailsIngested    int       `json:"emails_ingested"`    // Emails accepted by the ingest path
	LLMCalls          int       `json:"llm_calls"`          // Completion calls (analysis + reply)
	LLMTokensUsed     int       `json:"llm_tokens_used"`    // Total tokens consumed
	LLMCost           float64   `json:"llm_cost"`           // Sum of computed cost amounts
	TasksCreated      int       `json:"tasks_created"`      // Tasks created by fan-out
	FanoutRuns        int       `json:"fanout_runs"`        // Fan-out executions
	VectorSearches    int       `json:"vector_searches"`    // Knowledge index lookups
	NotificationsSent int       `json:"notifications_sent"` // Urgent task e-mails sent
	StartDate         time.Time `json:"start_date"`         // Period start
	EndDate           time.Time `json:"end_date"`           // Period end
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}
