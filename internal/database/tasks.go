package database

import (
	"context"
	"fmt"

	"triage/internal/models"

	"github.com/lib/pq"
)

const taskColumns = `id, title, content, status, priority, thread_id, executor_id, creator_id, due_date, metadata, created_at`

// CreateTask inserts t and sets its ID and CreatedAt
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	if t.Metadata == nil {
		t.Metadata = models.JSONMap{}
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO tasks (title, content, status, priority, thread_id, executor_id, creator_id, due_date, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		RETURNING id, created_at`,
		t.Title, t.Content, t.Status, t.Priority, t.ThreadID, t.ExecutorID, t.CreatorID, t.DueDate, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// CountOpenTasks returns the number of new and in-progress tasks per executor.
// Executors without open tasks map to 0.
func (s *Store) CountOpenTasks(ctx context.Context, executorIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(executorIDs))
	if len(executorIDs) == 0 {
		return out, nil
	}
	for _, id := range executorIDs {
		out[id] = 0
	}

	var rows []struct {
		ExecutorID int64 `db:"executor_id"`
		Open       int   `db:"open"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT executor_id, COUNT(*) AS open
		FROM tasks
		WHERE executor_id = ANY($1) AND status = ANY($2)
		GROUP BY executor_id`,
		pq.Array(executorIDs), pq.Array(openStatuses()))
	if err != nil {
		return nil, fmt.Errorf("failed to count open tasks: %w", err)
	}
	for _, r := range rows {
		out[r.ExecutorID] = r.Open
	}
	return out, nil
}

// ListTasksForGeneration returns tasks created from a generation, in creation order
func (s *Store) ListTasksForGeneration(ctx context.Context, generationID int64) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT `+taskColumns+` FROM tasks
		WHERE metadata->>'generation_id' = $1
		ORDER BY id ASC`, fmt.Sprintf("%d", generationID))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of generation %d: %w", generationID, err)
	}
	return tasks, nil
}

func openStatuses() []string {
	out := make([]string, len(models.OpenTaskStatuses))
	for i, st := range models.OpenTaskStatuses {
		out[i] = string(st)
	}
	return out
}
