package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	docs map[string]Document
}

func (m *memoryStore) Upsert(ctx context.Context, indexID string, docs []Document) error {
	if m.docs == nil {
		m.docs = map[string]Document{}
	}
	for _, d := range docs {
		m.docs[indexID+"/"+d.ID] = d
	}
	return nil
}

func TestIndexer_IndexDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.md"), []byte("Как получить акт сверки?\n\nНапишите в бухгалтерию."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "long.txt"), []byte(strings.Repeat("б", 2500)), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o600))

	store := &memoryStore{}
	ix := NewIndexer(store, &fakeEmbedder{}, zerolog.Nop())

	n, err := ix.IndexDir(context.Background(), "kb", dir)
	require.NoError(t, err)
	assert.Equal(t, 4, n) // 1 chunk for faq.md, 3 for long.txt
	assert.Len(t, store.docs, 4)

	// re-indexing overwrites the same chunk ids
	_, err = ix.IndexDir(context.Background(), "kb", dir)
	require.NoError(t, err)
	assert.Len(t, store.docs, 4)

	for _, d := range store.docs {
		assert.NotEmpty(t, d.Vector)
		assert.NotEmpty(t, d.FileID)
	}
}

func TestIndexer_EmptyText(t *testing.T) {
	ix := NewIndexer(&memoryStore{}, &fakeEmbedder{}, zerolog.Nop())

	n, err := ix.IndexText(context.Background(), "kb", "empty.md", "   ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
