// Package jobs implements the analysis, reply and task fan-out jobs.
package jobs

import (
	"context"
	"time"

	"triage/internal/config"
	"triage/internal/cost"
	"triage/internal/llm"
	"triage/internal/models"
	"triage/internal/staff"
)

// Store is the persistence the jobs need
type Store interface {
	GetEmail(ctx context.Context, id int64) (*models.Email, error)
	GetThreadWithEmails(ctx context.Context, id int64) (*models.Thread, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)

	CreateGeneration(ctx context.Context, g *models.Generation) error
	GetGeneration(ctx context.Context, id int64) (*models.Generation, error)
	LatestAnalyses(ctx context.Context, emailIDs []int64) (map[int64]*models.Generation, error)
	ListUnprocessedAnalyses(ctx context.Context, limit int, force bool) ([]int64, error)
	MergeGenerationMetadata(ctx context.Context, id int64, patch models.JSONMap) error
	ClaimGenerationForFanout(ctx context.Context, id int64, token string, now time.Time, lease time.Duration, force bool) (bool, error)
	ReleaseFanoutClaim(ctx context.Context, id int64, token string) error

	CreateTask(ctx context.Context, t *models.Task) error
}

// StaffSelector picks task executors
type StaffSelector interface {
	SelectLeastLoaded(ctx context.Context, deptCode string) (*int64, error)
	SelectByRole(ctx context.Context, deptCode string, roles []models.Role, order staff.Order) (*int64, error)
}

// Dispatcher schedules follow-up work on the queues
type Dispatcher interface {
	EnqueueFanout(ctx context.Context, generationID int64, force bool) (string, error)
}

// Tracker records analytics events
type Tracker interface {
	TrackEvent(eventType string, count int, metadata map[string]interface{}) error
}

// Notifier tells an executor about an urgent task
type Notifier interface {
	NotifyTask(ctx context.Context, task *models.Task, executor *models.User) error
}

// Analytics event types emitted by the jobs
const (
	EventLLMCall      = "llm_call"
	EventVectorSearch = "vector_search"
	EventTaskFanout   = "task_fanout"
)

// modelConfig converts the catalogue entry into a gateway request config
func modelConfig(m config.Model) llm.ModelConfig {
	return llm.ModelConfig{
		Model:       m.Model,
		Version:     m.Version,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Endpoint:    m.Endpoint,
	}
}

// completionMeta is the metadata every generation records about its LLM call
func completionMeta(m config.Model, c *llm.Completion, b cost.Breakdown) models.JSONMap {
	return models.JSONMap{
		"model":         m.Name,
		"model_version": c.ModelVersion,
		"request_id":    c.RequestID,
		"request":       modelConfig(m).Map(),
		"tokens": map[string]any{
			"input":  c.Usage.InputTextTokens,
			"output": c.Usage.CompletionTokens,
			"total":  c.Usage.TotalTokens,
		},
		"cost": b.Map(),
	}
}

func usageOf(c *llm.Completion) cost.Usage {
	return cost.Usage{
		InputTokens:  c.Usage.InputTextTokens,
		OutputTokens: c.Usage.CompletionTokens,
		TotalTokens:  c.Usage.TotalTokens,
	}
}

func ratesOf(m config.Model) cost.Rates {
	return cost.Rates{Input: m.Rates.Input, Output: m.Rates.Output, Currency: m.Rates.Currency}
}

func track(t Tracker, eventType string, count int, meta map[string]interface{}) error {
	if t == nil {
		return nil
	}
	return t.TrackEvent(eventType, count, meta)
}
