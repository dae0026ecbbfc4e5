package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage/internal/apperr"
	"triage/internal/models"

	"github.com/lib/pq"
)

const generationColumns = `id, email_id, thread_id, type, prompt, response, processing_time, status, error_message, metadata, is_spam, created_at`

// Metadata keys owned by the store
const (
	MetaTasksCreated       = "tasks_created"
	MetaFanoutClaim        = "fanout_claim"
	MetaFanoutClaimedUntil = "fanout_claimed_until"
)

// CreateGeneration inserts g and sets its ID and CreatedAt
func (s *Store) CreateGeneration(ctx context.Context, g *models.Generation) error {
	if g.Metadata == nil {
		g.Metadata = models.JSONMap{}
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO generations (email_id, thread_id, type, prompt, response, processing_time, status, error_message, metadata, is_spam)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9::jsonb, $10)
		RETURNING id, created_at`,
		g.EmailID, g.ThreadID, g.Type, g.Prompt, g.Response, g.ProcessingTime, g.Status, g.ErrorMessage, g.Metadata, g.IsSpam,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// GetGeneration loads a generation by id
func (s *Store) GetGeneration(ctx context.Context, id int64) (*models.Generation, error) {
	var g models.Generation
	err := s.db.GetContext(ctx, &g, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("generation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation %d: %w", id, err)
	}
	return &g, nil
}

// LatestAnalyses returns the most recent successful analysis of each email,
// keyed by email id. Emails without analysis are absent from the map.
func (s *Store) LatestAnalyses(ctx context.Context, emailIDs []int64) (map[int64]*models.Generation, error) {
	out := make(map[int64]*models.Generation, len(emailIDs))
	if len(emailIDs) == 0 {
		return out, nil
	}

	var rows []models.Generation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (email_id) `+generationColumns+`
		FROM generations
		WHERE email_id = ANY($1) AND type = $2 AND status = $3
		ORDER BY email_id, created_at DESC, id DESC`,
		pq.Array(emailIDs), models.GenerationAnalysis, models.GenerationSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest analyses: %w", err)
	}
	for i := range rows {
		if rows[i].EmailID != nil {
			out[*rows[i].EmailID] = &rows[i]
		}
	}
	return out, nil
}

// ListUnprocessedAnalyses returns ids of successful analyses, oldest first.
// Unless force is set, generations stamped tasks_created are skipped.
func (s *Store) ListUnprocessedAnalyses(ctx context.Context, limit int, force bool) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM generations
		WHERE type = $1 AND status = $2
			AND ($3 OR COALESCE((metadata->>'tasks_created')::boolean, false) = false)
		ORDER BY created_at ASC, id ASC
		LIMIT $4`,
		models.GenerationAnalysis, models.GenerationSuccess, force, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed analyses: %w", err)
	}
	return ids, nil
}

// MergeGenerationMetadata merges patch into the metadata object. Keys absent
// from patch are kept.
func (s *Store) MergeGenerationMetadata(ctx context.Context, id int64, patch models.JSONMap) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE generations
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb
		WHERE id = $2`, patch, id)
	if err != nil {
		return fmt.Errorf("failed to update metadata of generation %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("generation %d not found", id)
	}
	return nil
}

// ClaimGenerationForFanout takes a lease on a generation for fan-out. It
// succeeds only when no other lease is live and, unless force is set, the
// generation has not been stamped tasks_created.
func (s *Store) ClaimGenerationForFanout(ctx context.Context, id int64, token string, now time.Time, lease time.Duration, force bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE generations
		SET metadata = COALESCE(metadata, '{}'::jsonb)
			|| jsonb_build_object('fanout_claim', $2::text, 'fanout_claimed_until', $3::text)
		WHERE id = $1
			AND ($4 OR COALESCE((metadata->>'tasks_created')::boolean, false) = false)
			AND (metadata->>'fanout_claimed_until' IS NULL
				OR (metadata->>'fanout_claimed_until')::timestamptz < $5)`,
		id, token, now.Add(lease).UTC().Format(time.RFC3339Nano), force, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim generation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim generation %d: %w", id, err)
	}
	return n == 1, nil
}

// ReleaseFanoutClaim drops the lease if it is still held by token
func (s *Store) ReleaseFanoutClaim(ctx context.Context, id int64, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE generations
		SET metadata = metadata - 'fanout_claim' - 'fanout_claimed_until'
		WHERE id = $1 AND metadata->>'fanout_claim' = $2`, id, token)
	if err != nil {
		return fmt.Errorf("failed to release claim on generation %d: %w", id, err)
	}
	return nil
}
