package database

import (
	"context"
	"fmt"
)

// schema bootstraps the pipeline tables. Real deployments manage migrations
// elsewhere; this keeps local and test databases usable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		code VARCHAR(100) UNIQUE NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255),
		role VARCHAR(50) NOT NULL DEFAULT 'user',
		department_id BIGINT REFERENCES departments(id),
		department_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_task_assigned_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_department ON users(department_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS threads (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(500) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_threads_title ON threads(title)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id BIGSERIAL PRIMARY KEY,
		subject TEXT NOT NULL,
		content TEXT NOT NULL,
		thread_id BIGINT NOT NULL REFERENCES threads(id),
		from_address VARCHAR(255) NOT NULL,
		from_name VARCHAR(255),
		received_at TIMESTAMPTZ NOT NULL,
		message_id VARCHAR(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id) WHERE message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id, received_at)`,
	`CREATE TABLE IF NOT EXISTS generations (
		id BIGSERIAL PRIMARY KEY,
		email_id BIGINT REFERENCES emails(id),
		thread_id BIGINT REFERENCES threads(id),
		type VARCHAR(20) NOT NULL,
		prompt TEXT NOT NULL,
		response JSONB,
		processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		error_message TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_spam BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_email ON generations(email_id, type, status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_type_created ON generations(type, created_at)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(500) NOT NULL,
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'new',
		priority VARCHAR(20) NOT NULL DEFAULT 'medium',
		thread_id BIGINT NOT NULL REFERENCES threads(id),
		executor_id BIGINT REFERENCES users(id),
		creator_id BIGINT REFERENCES users(id),
		due_date TIMESTAMPTZ,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_executor_status ON tasks(executor_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_generation ON tasks((metadata->>'generation_id'))`,
}

// Migrate creates the pipeline tables if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
