package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"triage/internal/apperr"
	"triage/internal/models"

	"github.com/jmoiron/sqlx"
)

// Store is the Postgres persistence layer of the pipeline
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open connection
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const emailColumns = `id, subject, content, thread_id, from_address, from_name, received_at, message_id, created_at`

// StoreEmail files e into the newest active thread titled title, creating the
// thread if needed, and inserts e, all in one transaction. Ingests of the same
// title are serialised by an advisory lock so they share one thread. When an
// email with the same external message id exists nothing is written and
// apperr.Duplicate is returned. e.ID, e.ThreadID and e.CreatedAt are set on
// success.
func (s *Store) StoreEmail(ctx context.Context, title string, e *models.Email) (*models.Thread, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin email transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "thread:"+title); err != nil {
		return nil, fmt.Errorf("failed to lock thread title: %w", err)
	}

	thread, err := findOrCreateThread(ctx, tx, title)
	if err != nil {
		return nil, err
	}

	e.ThreadID = thread.ID
	if err := insertEmail(ctx, tx, e); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, thread.ID); err != nil {
		return nil, fmt.Errorf("failed to touch thread %d: %w", thread.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit email: %w", err)
	}
	committed = true
	return thread, nil
}

// insertEmail inserts e unless an email with the same external message id
// exists, in which case it returns apperr.Duplicate
func insertEmail(ctx context.Context, q sqlx.QueryerContext, e *models.Email) error {
	err := q.QueryRowxContext(ctx, `
		INSERT INTO emails (subject, content, thread_id, from_address, from_name, received_at, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) WHERE message_id IS NOT NULL DO NOTHING
		RETURNING id, created_at`,
		e.Subject, e.Content, e.ThreadID, e.FromAddress, e.FromName, e.ReceivedAt, e.MessageID,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Duplicate("email with message id %s already exists", deref(e.MessageID))
	}
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}
	return nil
}

// GetEmail loads an email by id
func (s *Store) GetEmail(ctx context.Context, id int64) (*models.Email, error) {
	var e models.Email
	err := s.db.GetContext(ctx, &e, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("email %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email %d: %w", id, err)
	}
	return &e, nil
}

// EmailExistsByMessageID reports whether an email with the external id was already ingested
func (s *Store) EmailExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = $1)`, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check message id: %w", err)
	}
	return exists, nil
}

const threadColumns = `id, title, status, created_at, updated_at`

// findOrCreateThread returns the newest active thread with title, creating one if none exists
func findOrCreateThread(ctx context.Context, q sqlx.QueryerContext, title string) (*models.Thread, error) {
	var t models.Thread
	err := sqlx.GetContext(ctx, q, &t, `
		SELECT `+threadColumns+` FROM threads
		WHERE title = $1 AND status = $2
		ORDER BY id DESC
		LIMIT 1`, title, models.ThreadActive)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find thread: %w", err)
	}

	err = sqlx.GetContext(ctx, q, &t, `
		INSERT INTO threads (title, status) VALUES ($1, $2)
		RETURNING `+threadColumns, title, models.ThreadActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return &t, nil
}

// GetThreadWithEmails loads a thread and its emails ordered by received_at
func (s *Store) GetThreadWithEmails(ctx context.Context, id int64) (*models.Thread, error) {
	var t models.Thread
	err := s.db.GetContext(ctx, &t, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("thread %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %d: %w", id, err)
	}

	err = s.db.SelectContext(ctx, &t.Emails, `
		SELECT `+emailColumns+` FROM emails
		WHERE thread_id = $1
		ORDER BY received_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load emails of thread %d: %w", id, err)
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
