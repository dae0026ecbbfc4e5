package models

import "time"

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskNew        TaskStatus = "new"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskArchived   TaskStatus = "archived"
	TaskCancelled  TaskStatus = "cancelled"
)

// OpenTaskStatuses are the statuses that count towards a user's load
var OpenTaskStatuses = []TaskStatus{TaskNew, TaskInProgress}

// MaxTitleLength is the width, in characters, of the task and thread title columns
const MaxTitleLength = 500

// TaskPriority orders tasks by urgency
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ParsePriority maps a free-form priority to a known one, defaulting to medium
func ParsePriority(s string) TaskPriority {
	switch TaskPriority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return TaskPriority(s)
	}
	return PriorityMedium
}

// AnalysisType tags the fan-out branch that produced a task
type AnalysisType string

const (
	AnalysisMainTask     AnalysisType = "main_task"
	AnalysisFollowUp     AnalysisType = "follow_up"
	AnalysisEscalation   AnalysisType = "escalation"
	AnalysisRiskAnalysis AnalysisType = "risk_analysis"
	AnalysisApproval     AnalysisType = "approval"
	AnalysisArchived     AnalysisType = "archived"
)

// Task represents one unit of work
type Task struct {
	ID         int64        `db:"id" json:"id"`
	Title      string       `db:"title" json:"title"`
	Content    string       `db:"content" json:"content"`
	Status     TaskStatus   `db:"status" json:"status"`
	Priority   TaskPriority `db:"priority" json:"priority"`
	ThreadID   int64        `db:"thread_id" json:"thread_id"`
	ExecutorID *int64       `db:"executor_id" json:"executor_id,omitempty"` // nil means unassigned
	CreatorID  *int64       `db:"creator_id" json:"creator_id,omitempty"`
	DueDate    *time.Time   `db:"due_date" json:"due_date,omitempty"`
	Metadata   JSONMap      `db:"metadata" json:"metadata" swaggertype:"object"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}
