package search

import (
	"context"
	"errors"
	"testing"

	"triage/internal/apperr"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQdrant struct {
	points    []*qdrant.ScoredPoint
	queryErr  error
	lastQuery *qdrant.QueryPoints
	exists    bool
	created   []string
	upserted  []*qdrant.UpsertPoints
}

func (f *fakeQdrant) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	return f.points, f.queryErr
}

func (f *fakeQdrant) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = append(f.upserted, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, nil
}

func (f *fakeQdrant) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req.CollectionName)
	f.exists = true
	return nil
}

func TestQdrantSearcher_Search(t *testing.T) {
	fq := &fakeQdrant{points: []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewID("8f1d2c3e-0000-4000-8000-000000000001"),
			Score: 0.87,
			Payload: qdrant.NewValueMap(map[string]any{
				"filename": "договор.md",
				"file_id":  "file-1",
				"text":     "Срок действия договора",
			}),
		},
		{
			Id:    qdrant.NewIDNum(7),
			Score: 0.5,
		},
	}}
	s := NewQdrantSearcher(fq, &fakeEmbedder{}, zerolog.Nop())

	r, err := s.Search(context.Background(), "kb-legal", "срок договора", 3)
	require.NoError(t, err)
	require.Len(t, r.Data, 2)

	assert.Equal(t, "kb-legal", fq.lastQuery.CollectionName)
	assert.Equal(t, uint64(3), fq.lastQuery.GetLimit())

	assert.Equal(t, "договор.md", r.Data[0].Filename)
	assert.Equal(t, "file-1", r.Data[0].FileID)
	assert.Equal(t, "Срок действия договора", r.Data[0].Text())
	assert.InDelta(t, 0.87, r.Data[0].Score, 1e-6)

	assert.Equal(t, "7", r.Data[1].FileID)
	assert.Empty(t, r.Data[1].Content)
}

func TestQdrantSearcher_SearchError(t *testing.T) {
	fq := &fakeQdrant{queryErr: errors.New("unavailable")}
	s := NewQdrantSearcher(fq, &fakeEmbedder{}, zerolog.Nop())

	_, err := s.Search(context.Background(), "kb", "q", 5)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUpstream))
}

func TestQdrantSearcher_UpsertCreatesCollection(t *testing.T) {
	fq := &fakeQdrant{}
	s := NewQdrantSearcher(fq, &fakeEmbedder{}, zerolog.Nop())

	docs := []Document{
		{ID: "8f1d2c3e-0000-4000-8000-000000000001", FileID: "f", Filename: "a.md", Text: "x", Vector: []float32{1, 2, 3}},
	}
	require.NoError(t, s.Upsert(context.Background(), "kb", docs))
	require.NoError(t, s.Upsert(context.Background(), "kb", docs))

	assert.Equal(t, []string{"kb"}, fq.created)
	require.Len(t, fq.upserted, 2)
	assert.Len(t, fq.upserted[0].Points, 1)
	assert.Equal(t, "kb", fq.upserted[0].CollectionName)
}
