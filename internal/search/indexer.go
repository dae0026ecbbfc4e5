package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"triage/internal/llm"
	"triage/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChunkSize is the size, in characters, of an indexed chunk
const ChunkSize = 1000

// Document is an embedded chunk ready to be stored
type Document struct {
	ID       string
	FileID   string
	Filename string
	Text     string
	Vector   []float32
}

// VectorStore persists embedded documents for an index
type VectorStore interface {
	Upsert(ctx context.Context, indexID string, docs []Document) error
}

// Indexer chunks local documents, embeds them and stores them in a VectorStore
type Indexer struct {
	store     VectorStore
	embedder  llm.Embedder
	batchSize int
	logger    zerolog.Logger
}

// NewIndexer creates an indexer
func NewIndexer(store VectorStore, embedder llm.Embedder, logger zerolog.Logger) *Indexer {
	return &Indexer{
		store:     store,
		embedder:  embedder,
		batchSize: 32,
		logger:    logger.With().Str("component", "indexer").Logger(),
	}
}

// indexable extensions
var textExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".csv": true}

// IndexDir indexes every text file under dir and returns the number of chunks stored
func (ix *Indexer) IndexDir(ctx context.Context, indexID, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, _ := filepath.Rel(dir, path)
		n, err := ix.IndexText(ctx, indexID, rel, string(data))
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return total, err
	}
	ix.logger.Info().Str("index_id", indexID).Int("chunks", total).Msg("Indexing completed")
	return total, nil
}

// IndexText chunks and stores one document. Chunk ids are derived from the
// file name and position so re-indexing overwrites earlier chunks.
func (ix *Indexer) IndexText(ctx context.Context, indexID, filename, text string) (int, error) {
	chunks := utils.ChunkText(text, ChunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}
	fileID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(indexID+"/"+filename)).String()

	stored := 0
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := ix.embedder.Embed(ctx, batch)
		if err != nil {
			return stored, fmt.Errorf("failed to embed %s: %w", filename, err)
		}
		if len(vectors) != len(batch) {
			return stored, fmt.Errorf("embedding count mismatch for %s: got %d, want %d", filename, len(vectors), len(batch))
		}

		docs := make([]Document, len(batch))
		for i, text := range batch {
			pos := start + i
			docs[i] = Document{
				ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", fileID, pos))).String(),
				FileID:   fileID,
				Filename: filename,
				Text:     text,
				Vector:   vectors[i],
			}
		}
		if err := ix.store.Upsert(ctx, indexID, docs); err != nil {
			return stored, err
		}
		stored += len(docs)
	}

	ix.logger.Debug().Str("file", filename).Int("chunks", stored).Msg("Document indexed")
	return stored, nil
}
