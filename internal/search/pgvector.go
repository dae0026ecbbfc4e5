package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"triage/internal/apperr"
	"triage/internal/llm"

	"github.com/jmoiron/sqlx"
)

// PgvectorSearcher searches the knowledge_chunks table with the pgvector extension
type PgvectorSearcher struct {
	db       *sqlx.DB
	embedder llm.Embedder
}

// NewPgvectorSearcher creates a pgvector backed searcher
func NewPgvectorSearcher(db *sqlx.DB, embedder llm.Embedder) *PgvectorSearcher {
	return &PgvectorSearcher{db: db, embedder: embedder}
}

// CreateTable creates the chunk table and its vector index
func (s *PgvectorSearcher) CreateTable(ctx context.Context, dim int) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id UUID PRIMARY KEY,
			index_id VARCHAR(100) NOT NULL,
			file_id VARCHAR(255) NOT NULL,
			filename VARCHAR(500) NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_index ON knowledge_chunks(index_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create knowledge_chunks: %w", err)
		}
	}
	return nil
}

type chunkRow struct {
	FileID    string  `db:"file_id"`
	Filename  string  `db:"filename"`
	ChunkText string  `db:"chunk_text"`
	Score     float64 `db:"score"`
}

// Search embeds query and returns the topK most similar chunks of indexID
func (s *PgvectorSearcher) Search(ctx context.Context, indexID, query string, topK int) (*Result, error) {
	vector, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	var rows []chunkRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT file_id, filename, chunk_text, 1 - (embedding <=> $1::vector) AS score
		FROM knowledge_chunks
		WHERE index_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		FormatFloat32VectorForPgvector(vector), indexID, topK)
	if err != nil {
		return nil, apperr.Upstream(err, "vector search failed")
	}

	result := &Result{Data: make([]Hit, 0, len(rows))}
	for _, r := range rows {
		result.Data = append(result.Data, Hit{
			Filename: r.Filename,
			FileID:   r.FileID,
			Score:    r.Score,
			Content:  []Chunk{{Text: r.ChunkText}},
		})
	}
	return result, nil
}

// Upsert stores embedded documents in knowledge_chunks
func (s *PgvectorSearcher) Upsert(ctx context.Context, indexID string, docs []Document) error {
	for _, d := range docs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO knowledge_chunks (id, index_id, file_id, filename, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)
			ON CONFLICT (id) DO UPDATE SET
				chunk_text = EXCLUDED.chunk_text,
				embedding = EXCLUDED.embedding`,
			d.ID, indexID, d.FileID, d.Filename, d.Text, FormatFloat32VectorForPgvector(d.Vector))
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", d.ID, err)
		}
	}
	return nil
}

// FormatFloat32VectorForPgvector converts a float32 slice to pgvector string format
// Example output: "[0.1,0.2,0.3]"
func FormatFloat32VectorForPgvector(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
